package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
	"finitefield.org/storefront/internal/platform/httpx"
	"finitefield.org/storefront/internal/platform/observability"
)

func (h *StorefrontHandlers) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("search_unavailable", "search is not configured", http.StatusServiceUnavailable))
		return
	}

	q := r.URL.Query()
	opts := catalog.SearchOptions{
		Locale:   locale.FromContext(ctx),
		Kinds:    parseSearchKinds(q.Get("type")),
		Category: strings.TrimSpace(q.Get("category")),
		Limit:    h.parseLimit(q.Get("limit")),
	}

	result, err := h.catalog.Search(ctx, q.Get("q"), opts)
	if err != nil {
		var validation *catalog.ValidationError
		if errors.As(err, &validation) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": validation.Message})
			return
		}
		observability.FromContext(ctx).Error("search failed", zap.String("query", observability.SanitizeQuery(q.Get("q"))), zap.Error(err))
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error during search"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *StorefrontHandlers) inlineSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteJSON(w, http.StatusOK, catalog.EmptyInlineResultSet())
		return
	}

	result, err := h.catalog.InlineSearch(ctx, r.URL.Query().Get("q"), locale.FromContext(ctx))
	if err != nil {
		observability.FromContext(ctx).Error("inline search failed", zap.String("query", observability.SanitizeQuery(r.URL.Query().Get("q"))), zap.Error(err))
		empty := catalog.EmptyInlineResultSet()
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "Internal server error during search",
			"products":   empty.Products,
			"categories": empty.Categories,
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

// parseLimit applies the default to missing or malformed values and clamps to [1, max].
func (h *StorefrontHandlers) parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return h.defaultLimit
	}
	if n < 1 {
		return 1
	}
	if n > h.maxLimit {
		return h.maxLimit
	}
	return n
}

// parseSearchKinds maps the type parameter. An unrecognised type selects no kind at all.
func parseSearchKinds(raw string) []cms.Kind {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	kind, ok := cms.ParseKind(raw)
	if !ok {
		return []cms.Kind{cms.Kind(raw)}
	}
	return []cms.Kind{kind}
}
