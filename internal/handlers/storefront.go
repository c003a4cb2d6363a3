package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
	"finitefield.org/storefront/internal/mail"
	storefrontmw "finitefield.org/storefront/internal/middleware"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxContactBodySize = 64 << 10
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// Catalog is the content gateway the storefront reads from.
type Catalog interface {
	FindBySlug(ctx context.Context, kind cms.Kind, slug string, code locale.Code) (*cms.Object, error)
	Product(ctx context.Context, slug string, code locale.Code) (*cms.Product, error)
	ListByCategory(ctx context.Context, ref cms.CategoryRef, code locale.Code) ([]cms.Product, error)
	Search(ctx context.Context, query string, opts catalog.SearchOptions) (catalog.SearchResultSet, error)
	InlineSearch(ctx context.Context, query string, code locale.Code) (catalog.InlineResultSet, error)
	Featured(ctx context.Context, code locale.Code) ([]cms.Product, error)
	NewReleases(ctx context.Context, code locale.Code) ([]cms.Product, error)
	SearchProductsByTitle(ctx context.Context, term string, code locale.Code) ([]cms.Product, error)
	Categories(ctx context.Context, code locale.Code) ([]catalog.CategorySummary, error)
	Audience(ctx context.Context, audience string, code locale.Code) (catalog.Landing, error)
	Sport(ctx context.Context, code locale.Code) (catalog.Landing, error)
	Home(ctx context.Context, code locale.Code) catalog.HomeSections
	Stores(ctx context.Context) ([]cms.Location, error)
	Collections(ctx context.Context) ([]cms.Collection, error)
	FeaturedAthletes(ctx context.Context) ([]cms.Athlete, error)
	LatestArticles(ctx context.Context, n int) ([]cms.Article, error)
}

// ContactSender dispatches contact submissions.
type ContactSender interface {
	Send(ctx context.Context, form mail.ContactForm) (mail.ContactReceipt, error)
}

// StorefrontHandlers exposes the public storefront endpoints.
type StorefrontHandlers struct {
	catalog      Catalog
	contact      ContactSender
	carriers     locale.Carriers
	defaultLimit int
	maxLimit     int
	maxBody      int64
}

// StorefrontOption customises construction of StorefrontHandlers.
type StorefrontOption func(*StorefrontHandlers)

// WithCatalog injects the content gateway.
func WithCatalog(c Catalog) StorefrontOption {
	return func(h *StorefrontHandlers) {
		h.catalog = c
	}
}

// WithContactSender injects the contact service.
func WithContactSender(s ContactSender) StorefrontOption {
	return func(h *StorefrontHandlers) {
		h.contact = s
	}
}

// WithLocaleCarriers sets the cookie and header names carrying the locale.
func WithLocaleCarriers(c locale.Carriers) StorefrontOption {
	return func(h *StorefrontHandlers) {
		h.carriers = c
	}
}

// WithSearchLimits sets the default and maximum full-search limit.
func WithSearchLimits(defaultLimit, maxLimit int) StorefrontOption {
	return func(h *StorefrontHandlers) {
		if defaultLimit > 0 {
			h.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			h.maxLimit = maxLimit
		}
	}
}

// WithContactBodyLimit caps the contact request body size.
func WithContactBodyLimit(n int64) StorefrontOption {
	return func(h *StorefrontHandlers) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewStorefrontHandlers constructs the storefront handlers.
func NewStorefrontHandlers(opts ...StorefrontOption) *StorefrontHandlers {
	h := &StorefrontHandlers{
		carriers:     locale.DefaultCarriers(),
		defaultLimit: defaultSearchLimit,
		maxLimit:     maxSearchLimit,
		maxBody:      maxContactBodySize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.defaultLimit > h.maxLimit {
		h.defaultLimit = h.maxLimit
	}
	return h
}

// Routes registers the storefront endpoints. Every route runs behind locale resolution.
func (h *StorefrontHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(storefrontmw.Locale(h.carriers), storefrontmw.HTMX)

	r.Get("/locale", h.getLocale)
	r.Post("/locale", h.setLocale)
	r.Post("/contact", h.submitContact)
	r.Get("/search", h.search)
	r.Get("/inline-search", h.inlineSearch)

	r.Get("/", h.home)
	r.Get("/products/{slug}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{slug}", h.getCategory)
	r.Get("/athletes", h.listAthletes)
	r.Get("/athletes/{slug}", h.getAthlete)
	r.Get("/articles", h.listArticles)
	r.Get("/articles/{slug}", h.getArticle)
	r.Get("/stores", h.listStores)
	r.Get("/collections", h.listCollections)
	r.Get("/pages/{slug}", h.getPage)
	r.Get("/new", h.newReleases)
	r.Get("/jordan", h.jordan)
	r.Get("/sport", h.sport)
	r.Get("/men", h.audience("men"))
	r.Get("/women", h.audience("women"))
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
