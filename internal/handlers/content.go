package handlers

import (
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/locale"
	"finitefield.org/storefront/internal/platform/httpx"
	"finitefield.org/storefront/internal/platform/observability"
)

const (
	jordanTitleTerm = "Jordan"
	maxArticleLimit = 50
)

type productView struct {
	cms.Product
	Sale             bool   `json:"onSale"`
	DisplayPrice     string `json:"displayPrice"`
	DisplaySalePrice string `json:"displaySalePrice,omitempty"`
}

func newProductView(p cms.Product, code locale.Code) productView {
	view := productView{Product: p, Sale: p.OnSale(), DisplayPrice: format.Price(p.Price, code)}
	if view.Sale {
		view.DisplaySalePrice = format.Price(p.SalePrice.Decimal, code)
	}
	return view
}

func productViews(products []cms.Product, code locale.Code) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, newProductView(p, code))
	}
	return out
}

type articleView struct {
	cms.Article
	ContentHTML template.HTML `json:"contentHtml,omitempty"`
	DisplayDate string        `json:"displayDate,omitempty"`
}

type pageView struct {
	cms.Page
	ContentHTML template.HTML `json:"contentHtml"`
}

type athleteView struct {
	cms.Athlete
	SignatureProducts []productView `json:"signature_products"`
}

func (h *StorefrontHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.catalog != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "content is not configured", http.StatusServiceUnavailable))
	return false
}

func (h *StorefrontHandlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observability.FromContext(r.Context()).Error("content request failed", zap.String("op", op), zap.Error(err))
	httpx.WriteError(r.Context(), w, httpx.ErrInternal)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, what string) {
	httpx.WriteError(r.Context(), w, httpx.NewError("not_found", what+" not found", http.StatusNotFound))
}

func (h *StorefrontHandlers) home(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	code := locale.FromContext(r.Context())
	sections := h.catalog.Home(r.Context(), code)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"locale":           code,
		"featuredProducts": productViews(sections.FeaturedProducts, code),
		"collections":      sections.Collections,
		"featuredAthletes": sections.FeaturedAthletes,
		"latestArticles":   articleViews(sections.LatestArticles, code),
	})
}

func (h *StorefrontHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	code := locale.FromContext(r.Context())
	product, err := h.catalog.Product(r.Context(), chi.URLParam(r, "slug"), code)
	if err != nil {
		h.writeUpstreamError(w, r, "product", err)
		return
	}
	if product == nil {
		writeNotFound(w, r, "product")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductView(*product, code))
}

func (h *StorefrontHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	categories, err := h.catalog.Categories(r.Context(), locale.FromContext(r.Context()))
	if err != nil {
		h.writeUpstreamError(w, r, "categories", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// getCategory serves a category and its products. The slug may also be a bare category id
// used by product references.
func (h *StorefrontHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx := r.Context()
	code := locale.FromContext(ctx)
	slug := chi.URLParam(r, "slug")

	obj, err := h.catalog.FindBySlug(ctx, cms.KindCategories, slug, code)
	if err != nil {
		h.writeUpstreamError(w, r, "category", err)
		return
	}
	ref := cms.RefByID(slug)
	var category *cms.Category
	if obj != nil {
		decoded, err := cms.DecodeCategory(*obj)
		if err != nil {
			h.writeUpstreamError(w, r, "category", err)
			return
		}
		category = &decoded
		ref = cms.RefEmbedded(decoded)
	}

	products, err := h.catalog.ListByCategory(ctx, ref, code)
	if err != nil {
		h.writeUpstreamError(w, r, "category products", err)
		return
	}
	if category == nil && len(products) == 0 {
		writeNotFound(w, r, "category")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"name":     categoryName(category, slug),
		"products": productViews(products, code),
	})
}

// categoryName is the display name, derived from the slug when the category itself is absent.
func categoryName(c *cms.Category, slug string) string {
	if c != nil && c.Name != "" {
		return c.Name
	}
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func (h *StorefrontHandlers) listAthletes(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	athletes, err := h.catalog.FeaturedAthletes(r.Context())
	if err != nil {
		h.writeUpstreamError(w, r, "athletes", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"athletes": athletes})
}

func (h *StorefrontHandlers) getAthlete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx := r.Context()
	code := locale.FromContext(ctx)
	obj, err := h.catalog.FindBySlug(ctx, cms.KindAthletes, chi.URLParam(r, "slug"), code)
	if err != nil {
		h.writeUpstreamError(w, r, "athlete", err)
		return
	}
	if obj == nil {
		writeNotFound(w, r, "athlete")
		return
	}
	athlete, err := cms.DecodeAthlete(*obj)
	if err != nil {
		h.writeUpstreamError(w, r, "athlete", err)
		return
	}
	signature := make([]cms.Product, 0, len(athlete.SignatureProducts))
	for _, p := range athlete.SignatureProducts {
		signature = append(signature, p.Localize(code.String()))
	}
	httpx.WriteJSON(w, http.StatusOK, athleteView{Athlete: athlete, SignatureProducts: productViews(signature, code)})
}

func (h *StorefrontHandlers) listArticles(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	n := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = min(parsed, maxArticleLimit)
		}
	}
	articles, err := h.catalog.LatestArticles(r.Context(), n)
	if err != nil {
		h.writeUpstreamError(w, r, "articles", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"articles": articleViews(articles, locale.FromContext(r.Context()))})
}

func articleViews(articles []cms.Article, code locale.Code) []articleView {
	out := make([]articleView, 0, len(articles))
	for _, a := range articles {
		view := articleView{Article: a, DisplayDate: format.PublishDate(a.PublishDate, code)}
		view.Content = ""
		out = append(out, view)
	}
	return out
}

func (h *StorefrontHandlers) getArticle(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx := r.Context()
	code := locale.FromContext(ctx)
	obj, err := h.catalog.FindBySlug(ctx, cms.KindArticles, chi.URLParam(r, "slug"), code)
	if err != nil {
		h.writeUpstreamError(w, r, "article", err)
		return
	}
	if obj == nil {
		writeNotFound(w, r, "article")
		return
	}
	article, err := cms.DecodeArticle(*obj)
	if err != nil {
		h.writeUpstreamError(w, r, "article", err)
		return
	}
	body, err := cms.RenderBody(article.Content)
	if err != nil {
		h.writeUpstreamError(w, r, "article body", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, articleView{
		Article:     article,
		ContentHTML: body,
		DisplayDate: format.PublishDate(article.PublishDate, code),
	})
}

func (h *StorefrontHandlers) listStores(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	stores, err := h.catalog.Stores(r.Context())
	if err != nil {
		h.writeUpstreamError(w, r, "stores", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (h *StorefrontHandlers) listCollections(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	collections, err := h.catalog.Collections(r.Context())
	if err != nil {
		h.writeUpstreamError(w, r, "collections", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func (h *StorefrontHandlers) getPage(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx := r.Context()
	obj, err := h.catalog.FindBySlug(ctx, cms.KindPages, chi.URLParam(r, "slug"), locale.FromContext(ctx))
	if err != nil {
		h.writeUpstreamError(w, r, "page", err)
		return
	}
	if obj == nil {
		writeNotFound(w, r, "page")
		return
	}
	page, err := cms.DecodePage(*obj)
	if err != nil {
		h.writeUpstreamError(w, r, "page", err)
		return
	}
	body, err := cms.RenderBody(page.Content)
	if err != nil {
		h.writeUpstreamError(w, r, "page body", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pageView{Page: page, ContentHTML: body})
}

func (h *StorefrontHandlers) newReleases(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	code := locale.FromContext(r.Context())
	products, err := h.catalog.NewReleases(r.Context(), code)
	if err != nil {
		h.writeUpstreamError(w, r, "new releases", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": productViews(products, code)})
}

func (h *StorefrontHandlers) jordan(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	code := locale.FromContext(r.Context())
	products, err := h.catalog.SearchProductsByTitle(r.Context(), jordanTitleTerm, code)
	if err != nil {
		h.writeUpstreamError(w, r, "jordan", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": productViews(products, code)})
}

func (h *StorefrontHandlers) sport(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	code := locale.FromContext(r.Context())
	landing, err := h.catalog.Sport(r.Context(), code)
	if err != nil {
		h.writeUpstreamError(w, r, "sport", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"products":   productViews(landing.Products, code),
		"categories": landing.Categories,
	})
}

func (h *StorefrontHandlers) audience(audience string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready(w, r) {
			return
		}
		code := locale.FromContext(r.Context())
		landing, err := h.catalog.Audience(r.Context(), audience, code)
		if err != nil {
			h.writeUpstreamError(w, r, audience, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"audience":   audience,
			"products":   productViews(landing.Products, code),
			"categories": landing.Categories,
		})
	}
}
