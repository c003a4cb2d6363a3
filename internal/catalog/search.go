package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
)

const (
	// MinSearchLength is the shortest trimmed query the full search accepts.
	MinSearchLength = 2
	// MinInlineSearchLength is the shortest trimmed query the type-ahead search runs.
	MinInlineSearchLength = 3

	inlineProductCap  = 5
	inlineCategoryCap = 3
)

// SearchableKinds are the kinds the full search spans when unrestricted.
var SearchableKinds = []cms.Kind{cms.KindProducts, cms.KindCategories, cms.KindArticles, cms.KindAthletes}

// ValidationError reports caller input the gateway refuses to query with.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: %s: %s", e.Field, e.Message)
}

// SearchOptions parameterises the full search.
type SearchOptions struct {
	Locale locale.Code
	// Kinds restricts the search. Empty means every searchable kind.
	Kinds []cms.Kind
	// Category restricts products to a category id.
	Category string
	// Limit is the product cap. Other kinds get a fraction of it.
	Limit int
}

// SearchResultSet aggregates one page of matches across kinds.
type SearchResultSet struct {
	Products     []cms.Product  `json:"products"`
	Categories   []cms.Category `json:"categories"`
	Articles     []cms.Article  `json:"articles"`
	Athletes     []cms.Athlete  `json:"athletes"`
	TotalResults int            `json:"totalResults"`
}

// InlineResultSet is the type-ahead result.
type InlineResultSet struct {
	Products   []cms.Product  `json:"products"`
	Categories []cms.Category `json:"categories"`
}

// EmptySearchResultSet returns a result set with non-nil, empty arrays.
func EmptySearchResultSet() SearchResultSet {
	return SearchResultSet{
		Products:   []cms.Product{},
		Categories: []cms.Category{},
		Articles:   []cms.Article{},
		Athletes:   []cms.Athlete{},
	}
}

// EmptyInlineResultSet returns a type-ahead result with non-nil, empty arrays.
func EmptyInlineResultSet() InlineResultSet {
	return InlineResultSet{Products: []cms.Product{}, Categories: []cms.Category{}}
}

// Caps are the per-kind result limits for one search.
type Caps struct {
	Products   int
	Categories int
	Articles   int
	Athletes   int
}

// CapsFor apportions limit across kinds.
func CapsFor(limit int) Caps {
	if limit < 0 {
		limit = 0
	}
	return Caps{
		Products:   limit,
		Categories: limit / 2,
		Articles:   limit / 4,
		Athletes:   limit / 4,
	}
}

func textMatch(text string, fields ...string) cms.Filter {
	conds := make([]cms.Filter, len(fields))
	for i, field := range fields {
		conds[i] = cms.Contains(field, text)
	}
	return cms.AnyOf(conds...)
}

func productMatch(text string) cms.Filter {
	return textMatch(text, "title", "metadata.name", "metadata.description")
}

func categoryMatch(text string) cms.Filter {
	return textMatch(text, "title", "metadata.name", "metadata.description")
}

func articleMatch(text string) cms.Filter {
	return textMatch(text, "title", "metadata.headline", "metadata.excerpt")
}

func athleteMatch(text string) cms.Filter {
	return textMatch(text, "title", "metadata.name", "metadata.bio")
}

func wants(kinds []cms.Kind, kind cms.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Search runs the full search. A query shorter than MinSearchLength returns an empty result
// and a ValidationError without contacting the store. Each kind is queried concurrently and a
// failing kind contributes no results.
func (g *Gateway) Search(ctx context.Context, query string, opts SearchOptions) (SearchResultSet, error) {
	text := strings.TrimSpace(query)
	if utf8.RuneCountInString(text) < MinSearchLength {
		return EmptySearchResultSet(), &ValidationError{
			Field:   "q",
			Message: fmt.Sprintf("Search query must be at least %d characters long", MinSearchLength),
		}
	}
	code := opts.Locale
	if !locale.Valid(code.String()) {
		code = locale.Default
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = g.defaultLimit
	}
	caps := CapsFor(limit)

	var (
		group                                    errgroup.Group
		products, categories, articles, athletes []cms.Object
	)
	if wants(opts.Kinds, cms.KindProducts) && caps.Products > 0 {
		filter := cms.All(cms.Eq("locale", code.String()), productMatch(text))
		if category := strings.TrimSpace(opts.Category); category != "" {
			filter = filter.And(cms.Eq("metadata.category", category))
		}
		group.Go(func() error {
			products = g.bestEffort(ctx, "search", cms.Query{
				Type: cms.KindProducts, Filter: filter, Props: listProps, Depth: 1, Limit: caps.Products,
			})
			return nil
		})
	}
	if wants(opts.Kinds, cms.KindCategories) && caps.Categories > 0 {
		group.Go(func() error {
			categories = g.bestEffort(ctx, "search", cms.Query{
				Type: cms.KindCategories, Filter: categoryMatch(text), Props: listProps, Limit: caps.Categories,
			})
			return nil
		})
	}
	if wants(opts.Kinds, cms.KindArticles) && caps.Articles > 0 {
		group.Go(func() error {
			articles = g.bestEffort(ctx, "search", cms.Query{
				Type: cms.KindArticles, Filter: articleMatch(text), Props: listProps, Limit: caps.Articles,
			})
			return nil
		})
	}
	if wants(opts.Kinds, cms.KindAthletes) && caps.Athletes > 0 {
		group.Go(func() error {
			athletes = g.bestEffort(ctx, "search", cms.Query{
				Type: cms.KindAthletes, Filter: athleteMatch(text), Props: listProps, Limit: caps.Athletes,
			})
			return nil
		})
	}
	_ = group.Wait()

	result := SearchResultSet{
		Products:   capped(g.decodeProducts(products, code), caps.Products),
		Categories: capped(g.decodeCategories(categories), caps.Categories),
		Articles:   capped(g.decodeArticles(articles), caps.Articles),
		Athletes:   capped(g.decodeAthletes(athletes), caps.Athletes),
	}
	result.TotalResults = len(result.Products) + len(result.Categories) + len(result.Articles) + len(result.Athletes)
	return result, nil
}

// InlineSearch runs the type-ahead search: a few products in code and a few categories.
// Queries shorter than MinInlineSearchLength return empty arrays.
func (g *Gateway) InlineSearch(ctx context.Context, query string, code locale.Code) (InlineResultSet, error) {
	text := strings.TrimSpace(query)
	if utf8.RuneCountInString(text) < MinInlineSearchLength {
		return EmptyInlineResultSet(), nil
	}
	if !locale.Valid(code.String()) {
		code = locale.Default
	}

	var (
		group                errgroup.Group
		products, categories []cms.Object
	)
	group.Go(func() error {
		products = g.bestEffort(ctx, "inline-search", cms.Query{
			Type:   cms.KindProducts,
			Filter: cms.All(cms.Eq("locale", code.String()), textMatch(text, "title", "metadata.name")),
			Props:  listProps,
			Depth:  1,
			Limit:  inlineProductCap,
		})
		return nil
	})
	group.Go(func() error {
		categories = g.bestEffort(ctx, "inline-search", cms.Query{
			Type:   cms.KindCategories,
			Filter: textMatch(text, "title", "metadata.name"),
			Props:  listProps,
			Limit:  inlineCategoryCap,
		})
		return nil
	})
	_ = group.Wait()

	return InlineResultSet{
		Products:   capped(g.decodeProducts(products, code), inlineProductCap),
		Categories: capped(g.decodeCategories(categories), inlineCategoryCap),
	}, nil
}

// capped enforces a cap the store may not have honoured.
func capped[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
