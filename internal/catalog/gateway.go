package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
)

const (
	meterName      = "finitefield.org/storefront/internal/catalog"
	defaultTimeout = 5 * time.Second
	defaultLimit   = 20
)

var listProps = []string{"id", "title", "slug", "metadata", "locale"}

// ErrStoreMissing signals that the content store dependency is absent.
var ErrStoreMissing = errors.New("catalog: content store is not configured")

// GatewayDeps groups constructor parameters for the gateway.
type GatewayDeps struct {
	Store  cms.Store
	Logger *zap.Logger
	// Timeout bounds every individual store call.
	Timeout time.Duration
	// DefaultLimit applies to searches that do not request a limit.
	DefaultLimit int
	// AudienceCategories maps a landing audience to its category ids.
	AudienceCategories map[string][]string
	Meter              metric.Meter
}

// Gateway issues typed, locale-parameterised queries against the content store.
type Gateway struct {
	store        cms.Store
	logger       *zap.Logger
	timeout      time.Duration
	defaultLimit int
	audiences    map[string][]string
	degraded     metric.Int64Counter
}

// NewGateway constructs the gateway with the supplied dependencies.
func NewGateway(deps GatewayDeps) (*Gateway, error) {
	if deps.Store == nil {
		return nil, ErrStoreMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := deps.DefaultLimit
	if limit <= 0 {
		limit = defaultLimit
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	degraded, err := meter.Int64Counter("catalog.subquery.degraded",
		metric.WithDescription("Sub-queries that failed and were served as empty"),
	)
	if err != nil {
		logger.Warn("catalog: unable to register degraded counter", zap.Error(err))
	}

	audiences := make(map[string][]string, len(deps.AudienceCategories))
	for audience, ids := range deps.AudienceCategories {
		audiences[strings.ToLower(strings.TrimSpace(audience))] = append([]string(nil), ids...)
	}

	return &Gateway{
		store:        deps.Store,
		logger:       logger,
		timeout:      timeout,
		defaultLimit: limit,
		audiences:    audiences,
		degraded:     degraded,
	}, nil
}

func (g *Gateway) find(ctx context.Context, q cms.Query) ([]cms.Object, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.Find(ctx, q)
}

func (g *Gateway) findOne(ctx context.Context, q cms.Query) (cms.Object, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.FindOne(ctx, q)
}

// findAll treats NotFound as an empty result.
func (g *Gateway) findAll(ctx context.Context, q cms.Query) ([]cms.Object, error) {
	objects, err := g.find(ctx, q)
	if cms.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", q.Type, err)
	}
	return objects, nil
}

// bestEffort runs a query whose failure must not fail the caller. Errors are logged and counted.
func (g *Gateway) bestEffort(ctx context.Context, section string, q cms.Query) []cms.Object {
	objects, err := g.find(ctx, q)
	if err == nil {
		return objects
	}
	if cms.IsNotFound(err) {
		return nil
	}
	g.logger.Warn("catalog: sub-query failed",
		zap.String("section", section),
		zap.String("type", q.Type.String()),
		zap.Error(err),
	)
	if g.degraded != nil {
		g.degraded.Add(ctx, 1, metric.WithAttributes(sectionAttr(section, q.Type)...))
	}
	return nil
}

// FindBySlug looks up one object. Localized kinds are matched on locale too, and a miss in a
// non-default locale is retried once with the default. It returns nil when nothing matches.
func (g *Gateway) FindBySlug(ctx context.Context, kind cms.Kind, slug string, code locale.Code) (*cms.Object, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	if !locale.Valid(code.String()) {
		code = locale.Default
	}

	obj, err := g.findOne(ctx, slugQuery(kind, slug, code))
	if cms.IsNotFound(err) && kind.Localized() && !code.IsDefault() {
		obj, err = g.findOne(ctx, slugQuery(kind, slug, locale.Default))
	}
	if cms.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find %s %q: %w", kind, slug, err)
	}
	return &obj, nil
}

func slugQuery(kind cms.Kind, slug string, code locale.Code) cms.Query {
	filter := cms.Eq("slug", slug)
	if kind.Localized() {
		filter = filter.And(cms.Eq("locale", code.String()))
	}
	return cms.Query{Type: kind, Filter: filter, Depth: 1}
}

// Product returns the product for slug localized to code, or nil when absent.
func (g *Gateway) Product(ctx context.Context, slug string, code locale.Code) (*cms.Product, error) {
	obj, err := g.FindBySlug(ctx, cms.KindProducts, slug, code)
	if err != nil || obj == nil {
		return nil, err
	}
	product, err := cms.DecodeProduct(*obj)
	if err != nil {
		return nil, err
	}
	product = product.Localize(code.String())
	return &product, nil
}

// ListByCategory returns the products whose category reference resolves to ref, whichever
// shape ref has. Products are scoped to code with one fallback hop to the default locale.
func (g *Gateway) ListByCategory(ctx context.Context, ref cms.CategoryRef, code locale.Code) ([]cms.Product, error) {
	if ref.IsZero() {
		return []cms.Product{}, nil
	}
	target := categoryTarget(ref)
	keys := []string{cms.CategoryKeyOf(ref)}
	if target.Slug != "" && target.Slug != keys[0] {
		keys = append(keys, target.Slug)
	}

	products, err := g.categoryProducts(ctx, keys, target, code)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 && !code.IsDefault() {
		return g.categoryProducts(ctx, keys, target, locale.Default)
	}
	return products, nil
}

func (g *Gateway) categoryProducts(ctx context.Context, keys []string, target cms.Category, code locale.Code) ([]cms.Product, error) {
	objects, err := g.findAll(ctx, cms.Query{
		Type:   cms.KindProducts,
		Filter: cms.All(cms.Eq("locale", code.String()), cms.In("metadata.category", keys...)),
		Props:  listProps,
		Depth:  1,
	})
	if err != nil {
		return nil, err
	}
	products := g.decodeProducts(objects, code)
	out := products[:0]
	for _, p := range products {
		if p.Category.Matches(target) {
			out = append(out, p)
		}
	}
	return out, nil
}

func categoryTarget(ref cms.CategoryRef) cms.Category {
	if c, ok := ref.Embedded(); ok {
		return c
	}
	return cms.Category{ID: cms.CategoryKeyOf(ref)}
}
