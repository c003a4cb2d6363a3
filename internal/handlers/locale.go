package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"finitefield.org/storefront/internal/locale"
	storefrontmw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/platform/httpx"
	"finitefield.org/storefront/internal/platform/observability"
)

const maxLocaleBodySize = 1 << 10

type localeResponse struct {
	Locale    locale.Code   `json:"locale"`
	Default   locale.Code   `json:"default"`
	Supported []locale.Info `json:"supported"`
}

func (h *StorefrontHandlers) getLocale(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, localeResponse{
		Locale:    locale.FromContext(r.Context()),
		Default:   locale.Default,
		Supported: locale.Supported(),
	})
}

// setLocale persists an explicit choice, then has the client re-run the request pipeline:
// htmx requests get HX-Refresh, plain form posts are redirected back.
func (h *StorefrontHandlers) setLocale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := readLocaleChoice(w, r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid locale request", http.StatusBadRequest))
		return
	}
	code, ok := locale.Parse(strings.TrimSpace(raw))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_locale", "unsupported locale", http.StatusBadRequest).
			WithDetails(map[string]any{"supported": supportedCodes()}))
		return
	}

	locale.Persist(ctx, observability.FromContext(ctx), code, h.carriers.Writers(w)...)

	if storefrontmw.IsHTMX(ctx) {
		w.Header().Set("HX-Refresh", "true")
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"locale": code})
		return
	}
	http.Redirect(w, r, backTarget(r), http.StatusSeeOther)
}

func readLocaleChoice(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := readLimitedBody(r, maxLocaleBodySize)
		if err != nil {
			return "", err
		}
		var payload struct {
			Locale string `json:"locale"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", err
		}
		return payload.Locale, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxLocaleBodySize)
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("locale"), nil
}

// backTarget returns the same-origin page the switch was made from, or "/". The htmx
// current URL wins over Referer.
func backTarget(r *http.Request) string {
	ref := storefrontmw.HTMXFrom(r.Context()).CurrentURL
	if ref == "" {
		ref = strings.TrimSpace(r.Referer())
	}
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) {
		return "/"
	}
	target := u.EscapedPath()
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

func supportedCodes() []string {
	infos := locale.Supported()
	codes := make([]string, len(infos))
	for i, info := range infos {
		codes[i] = info.Code.String()
	}
	return codes
}
