package catalog

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
)

const defaultLatestArticles = 3

var sportProductTypes = []string{"shoes", "equipment"}

// CategorySummary is a category with the number of products referencing it.
type CategorySummary struct {
	cms.Category
	ProductCount int `json:"productCount"`
}

// Landing is the data behind an audience or sport section.
type Landing struct {
	Products   []cms.Product  `json:"products"`
	Categories []cms.Category `json:"categories"`
}

// HomeSections is the data behind the home page. Each section is loaded independently.
type HomeSections struct {
	FeaturedProducts []cms.Product    `json:"featuredProducts"`
	Collections      []cms.Collection `json:"collections"`
	FeaturedAthletes []cms.Athlete    `json:"featuredAthletes"`
	LatestArticles   []cms.Article    `json:"latestArticles"`
}

func featuredQuery(code locale.Code) cms.Query {
	return cms.Query{
		Type:   cms.KindProducts,
		Filter: cms.All(cms.Eq("locale", code.String()), cms.Eq("metadata.featured", true)),
		Props:  listProps,
		Depth:  1,
	}
}

// Featured lists featured products in code, falling back once to the default locale when
// code has none.
func (g *Gateway) Featured(ctx context.Context, code locale.Code) ([]cms.Product, error) {
	objects, err := g.findAll(ctx, featuredQuery(code))
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 && !code.IsDefault() {
		if objects, err = g.findAll(ctx, featuredQuery(locale.Default)); err != nil {
			return nil, err
		}
	}
	return g.decodeProducts(objects, code), nil
}

// NewReleases lists products flagged as new releases in code.
func (g *Gateway) NewReleases(ctx context.Context, code locale.Code) ([]cms.Product, error) {
	objects, err := g.findAll(ctx, cms.Query{
		Type:   cms.KindProducts,
		Filter: cms.All(cms.Eq("locale", code.String()), cms.Eq("metadata.new_release", true)),
		Props:  listProps,
		Depth:  1,
	})
	if err != nil {
		return nil, err
	}
	return g.decodeProducts(objects, code), nil
}

// SearchProductsByTitle lists products in code whose title contains term.
func (g *Gateway) SearchProductsByTitle(ctx context.Context, term string, code locale.Code) ([]cms.Product, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []cms.Product{}, nil
	}
	objects, err := g.findAll(ctx, cms.Query{
		Type:   cms.KindProducts,
		Filter: cms.All(cms.Eq("locale", code.String()), cms.Contains("title", term)),
		Props:  listProps,
		Depth:  1,
	})
	if err != nil {
		return nil, err
	}
	return g.decodeProducts(objects, code), nil
}

// Categories lists every category with the count of products in code that reference it.
func (g *Gateway) Categories(ctx context.Context, code locale.Code) ([]CategorySummary, error) {
	var (
		group                           errgroup.Group
		categoryObjects, productObjects []cms.Object
	)
	group.Go(func() error {
		var err error
		categoryObjects, err = g.findAll(ctx, cms.Query{Type: cms.KindCategories, Props: listProps, Depth: 1})
		return err
	})
	group.Go(func() error {
		var err error
		productObjects, err = g.findAll(ctx, cms.Query{
			Type:   cms.KindProducts,
			Filter: cms.Eq("locale", code.String()),
			Props:  []string{"id", "metadata.category"},
			Depth:  1,
		})
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	products := g.decodeProducts(productObjects, code)
	categories := g.decodeCategories(categoryObjects)
	out := make([]CategorySummary, 0, len(categories))
	for _, category := range categories {
		summary := CategorySummary{Category: category}
		for _, p := range products {
			if p.Category.Matches(category) {
				summary.ProductCount++
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// Audience loads a landing section for an audience such as "men" or "women". Categories are
// those targeting the audience. Products come from the configured audience categories, or
// from the returned categories when none are configured.
func (g *Gateway) Audience(ctx context.Context, audience string, code locale.Code) (Landing, error) {
	audience = strings.ToLower(strings.TrimSpace(audience))
	if audience == "" {
		return Landing{}, &ValidationError{Field: "audience", Message: "audience is required"}
	}
	categoryQuery := cms.Query{
		Type:   cms.KindCategories,
		Filter: cms.Eq("metadata.target_audience.key", audience),
		Props:  listProps,
		Depth:  1,
	}

	var categoryObjects, productObjects []cms.Object
	if ids := g.audiences[audience]; len(ids) > 0 {
		var group errgroup.Group
		group.Go(func() error {
			categoryObjects = g.bestEffort(ctx, audience, categoryQuery)
			return nil
		})
		group.Go(func() error {
			productObjects = g.bestEffort(ctx, audience, categoryProductsQuery(ids, code))
			return nil
		})
		_ = group.Wait()
	} else {
		categoryObjects = g.bestEffort(ctx, audience, categoryQuery)
		ids := make([]string, 0, len(categoryObjects))
		for _, obj := range categoryObjects {
			ids = append(ids, obj.ID)
		}
		if len(ids) > 0 {
			productObjects = g.bestEffort(ctx, audience, categoryProductsQuery(ids, code))
		}
	}

	return Landing{
		Products:   g.decodeProducts(productObjects, code),
		Categories: g.decodeCategories(categoryObjects),
	}, nil
}

func categoryProductsQuery(ids []string, code locale.Code) cms.Query {
	return cms.Query{
		Type:   cms.KindProducts,
		Filter: cms.All(cms.Eq("locale", code.String()), cms.In("metadata.category", ids...)),
		Props:  listProps,
		Depth:  1,
	}
}

// Sport loads shoes and equipment together with every category.
func (g *Gateway) Sport(ctx context.Context, code locale.Code) (Landing, error) {
	var (
		group                           errgroup.Group
		productObjects, categoryObjects []cms.Object
	)
	group.Go(func() error {
		productObjects = g.bestEffort(ctx, "sport", cms.Query{
			Type:   cms.KindProducts,
			Filter: cms.All(cms.Eq("locale", code.String()), cms.In("metadata.product_type.key", sportProductTypes...)),
			Props:  listProps,
			Depth:  1,
		})
		return nil
	})
	group.Go(func() error {
		categoryObjects = g.bestEffort(ctx, "sport", cms.Query{Type: cms.KindCategories, Props: listProps, Depth: 1})
		return nil
	})
	_ = group.Wait()

	return Landing{
		Products:   g.decodeProducts(productObjects, code),
		Categories: g.decodeCategories(categoryObjects),
	}, nil
}

// Home loads the home page sections concurrently. A failing section is served empty.
func (g *Gateway) Home(ctx context.Context, code locale.Code) HomeSections {
	var (
		group                                     errgroup.Group
		featured, collections, athletes, articles []cms.Object
	)
	group.Go(func() error {
		featured = g.bestEffort(ctx, "home", featuredQuery(code))
		if len(featured) == 0 && !code.IsDefault() {
			featured = g.bestEffort(ctx, "home", featuredQuery(locale.Default))
		}
		return nil
	})
	group.Go(func() error {
		collections = g.bestEffort(ctx, "home", collectionsQuery())
		return nil
	})
	group.Go(func() error {
		athletes = g.bestEffort(ctx, "home", featuredAthletesQuery())
		return nil
	})
	group.Go(func() error {
		articles = g.bestEffort(ctx, "home", latestArticlesQuery(defaultLatestArticles))
		return nil
	})
	_ = group.Wait()

	return HomeSections{
		FeaturedProducts: g.decodeProducts(featured, code),
		Collections:      decodeAll(g.logger, collections, cms.DecodeCollection),
		FeaturedAthletes: g.decodeAthletes(athletes),
		LatestArticles:   capped(g.decodeArticles(articles), defaultLatestArticles),
	}
}

func collectionsQuery() cms.Query {
	return cms.Query{Type: cms.KindCollections, Props: listProps, Depth: 1}
}

func featuredAthletesQuery() cms.Query {
	return cms.Query{
		Type:   cms.KindAthletes,
		Filter: cms.Eq("metadata.featured", true),
		Props:  listProps,
		Depth:  1,
	}
}

func latestArticlesQuery(n int) cms.Query {
	return cms.Query{
		Type:  cms.KindArticles,
		Props: listProps,
		Limit: n,
		Sort:  "-metadata.publish_date",
	}
}

// Stores lists every retail location.
func (g *Gateway) Stores(ctx context.Context) ([]cms.Location, error) {
	objects, err := g.findAll(ctx, cms.Query{Type: cms.KindStores, Props: listProps})
	if err != nil {
		return nil, err
	}
	return decodeAll(g.logger, objects, cms.DecodeLocation), nil
}

// Collections lists curated collections with their products expanded.
func (g *Gateway) Collections(ctx context.Context) ([]cms.Collection, error) {
	objects, err := g.findAll(ctx, collectionsQuery())
	if err != nil {
		return nil, err
	}
	return decodeAll(g.logger, objects, cms.DecodeCollection), nil
}

// FeaturedAthletes lists athletes flagged as featured.
func (g *Gateway) FeaturedAthletes(ctx context.Context) ([]cms.Athlete, error) {
	objects, err := g.findAll(ctx, featuredAthletesQuery())
	if err != nil {
		return nil, err
	}
	return g.decodeAthletes(objects), nil
}

// LatestArticles lists the n most recently published articles.
func (g *Gateway) LatestArticles(ctx context.Context, n int) ([]cms.Article, error) {
	if n <= 0 {
		n = defaultLatestArticles
	}
	objects, err := g.findAll(ctx, latestArticlesQuery(n))
	if err != nil {
		return nil, err
	}
	return capped(g.decodeArticles(objects), n), nil
}
