package cms

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Image is an uploaded media reference.
type Image struct {
	URL      string `json:"url"`
	ImgixURL string `json:"imgix_url,omitempty"`
}

// Option is a select-field value.
type Option struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LocalizedFields overrides product copy for one locale.
type LocalizedFields struct {
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	Features         string `json:"features,omitempty"`
	Materials        string `json:"materials,omitempty"`
	CareInstructions string `json:"care_instructions,omitempty"`
}

// Product is a sellable catalog item.
type Product struct {
	ID               string                     `json:"id"`
	Slug             string                     `json:"slug"`
	Title            string                     `json:"title"`
	Locale           string                     `json:"locale,omitempty"`
	Name             string                     `json:"name"`
	Description      string                     `json:"description"`
	Price            decimal.Decimal            `json:"price"`
	SalePrice        decimal.NullDecimal        `json:"sale_price"`
	Images           []Image                    `json:"images"`
	Category         CategoryRef                `json:"category"`
	Sizes            []string                   `json:"sizes,omitempty"`
	Colors           []string                   `json:"colors,omitempty"`
	ProductType      *Option                    `json:"product_type,omitempty"`
	Featured         bool                       `json:"featured"`
	NewRelease       bool                       `json:"new_release"`
	Features         string                     `json:"features,omitempty"`
	Materials        string                     `json:"materials,omitempty"`
	CareInstructions string                     `json:"care_instructions,omitempty"`
	LocalizedContent map[string]LocalizedFields `json:"localized_content,omitempty"`
}

// OnSale reports whether a sale price exists and is strictly below the list price.
func (p Product) OnSale() bool {
	return p.SalePrice.Valid && p.SalePrice.Decimal.LessThan(p.Price)
}

// CurrentPrice is the price a shopper pays today.
func (p Product) CurrentPrice() decimal.Decimal {
	if p.OnSale() {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// Localize returns a copy with copy fields overridden for code when an override exists.
func (p Product) Localize(code string) Product {
	override, ok := p.LocalizedContent[code]
	if !ok {
		return p
	}
	if override.Title != "" {
		p.Title = override.Title
		p.Name = override.Title
	}
	if override.Description != "" {
		p.Description = override.Description
	}
	if override.Features != "" {
		p.Features = override.Features
	}
	if override.Materials != "" {
		p.Materials = override.Materials
	}
	if override.CareInstructions != "" {
		p.CareInstructions = override.CareInstructions
	}
	return p
}

// Category groups products.
type Category struct {
	ID             string       `json:"id"`
	Slug           string       `json:"slug"`
	Title          string       `json:"title"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Image          *Image       `json:"image,omitempty"`
	Parent         *CategoryRef `json:"parent_category,omitempty"`
	TargetAudience *Option      `json:"target_audience,omitempty"`
}

// Athlete is a sponsored athlete profile.
type Athlete struct {
	ID                string      `json:"id"`
	Slug              string      `json:"slug"`
	Title             string      `json:"title"`
	Name              string      `json:"name"`
	Bio               string      `json:"bio"`
	Sport             *Option     `json:"sport,omitempty"`
	ProfileImage      *Image      `json:"profile_image,omitempty"`
	ActionShot        *Image      `json:"action_shot,omitempty"`
	SignatureProducts ProductList `json:"signature_products,omitempty"`
	Featured          bool        `json:"featured"`
}

// Article is an editorial story.
type Article struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Headline      string    `json:"headline"`
	Excerpt       string    `json:"excerpt"`
	Content       string    `json:"content"`
	FeaturedImage *Image    `json:"featured_image,omitempty"`
	Author        string    `json:"author"`
	PublishDate   string    `json:"publish_date"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Location is a physical retail store.
type Location struct {
	ID       string   `json:"id"`
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone,omitempty"`
	Hours    string   `json:"hours"`
	Image    *Image   `json:"image,omitempty"`
	Services []string `json:"services,omitempty"`
}

// Page is a standalone content page.
type Page struct {
	ID              string `json:"id"`
	Slug            string `json:"slug"`
	Title           string `json:"title"`
	Locale          string `json:"locale,omitempty"`
	Content         string `json:"content"`
	MetaDescription string `json:"meta_description,omitempty"`
	FeaturedImage   *Image `json:"featured_image,omitempty"`
}

// Collection is a curated product drop.
type Collection struct {
	ID             string      `json:"id"`
	Slug           string      `json:"slug"`
	Title          string      `json:"title"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	HeroImage      *Image      `json:"hero_image,omitempty"`
	Products       ProductList `json:"products,omitempty"`
	LaunchDate     string      `json:"launch_date,omitempty"`
	LimitedEdition bool        `json:"limited_edition"`
}

// ProductList decodes a list of product references. Bare ids, present when the query
// did not expand references, are kept as products carrying only an id.
type ProductList []Product

// UnmarshalJSON implements json.Unmarshaler.
func (l *ProductList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("cms: product list: %w", err)
	}
	out := make(ProductList, 0, len(items))
	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			out = append(out, Product{ID: id})
			continue
		}
		var obj Object
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("cms: product list item: %w", err)
		}
		product, err := DecodeProduct(obj)
		if err != nil {
			return err
		}
		out = append(out, product)
	}
	*l = out
	return nil
}

// decodeMetadata copies the metadata bag into a typed struct through its JSON form.
func decodeMetadata(obj Object, want Kind, dst any) error {
	if want != "" && obj.Type != "" && obj.Type != want {
		return fmt.Errorf("cms: object %s is %s, not %s", obj.ID, obj.Type, want)
	}
	if len(obj.Metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(obj.Metadata)
	if err != nil {
		return fmt.Errorf("cms: encode metadata %s: %w", obj.ID, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("cms: decode %s %s: %w", want, obj.ID, err)
	}
	return nil
}

// DecodeProduct maps a products object.
func DecodeProduct(obj Object) (Product, error) {
	var p Product
	if err := decodeMetadata(obj, KindProducts, &p); err != nil {
		return Product{}, err
	}
	p.ID, p.Slug, p.Title, p.Locale = obj.ID, obj.Slug, obj.Title, obj.Locale
	if p.Name == "" {
		p.Name = obj.Title
	}
	return p, nil
}

// DecodeCategory maps a categories object.
func DecodeCategory(obj Object) (Category, error) {
	var c Category
	if err := decodeMetadata(obj, KindCategories, &c); err != nil {
		return Category{}, err
	}
	c.ID, c.Slug, c.Title = obj.ID, obj.Slug, obj.Title
	if c.Name == "" {
		c.Name = obj.Title
	}
	return c, nil
}

// DecodeAthlete maps an athletes object.
func DecodeAthlete(obj Object) (Athlete, error) {
	var a Athlete
	if err := decodeMetadata(obj, KindAthletes, &a); err != nil {
		return Athlete{}, err
	}
	a.ID, a.Slug, a.Title = obj.ID, obj.Slug, obj.Title
	if a.Name == "" {
		a.Name = obj.Title
	}
	return a, nil
}

// DecodeArticle maps an articles object.
func DecodeArticle(obj Object) (Article, error) {
	var a Article
	if err := decodeMetadata(obj, KindArticles, &a); err != nil {
		return Article{}, err
	}
	a.ID, a.Slug, a.Title, a.CreatedAt = obj.ID, obj.Slug, obj.Title, obj.CreatedAt
	if a.Headline == "" {
		a.Headline = obj.Title
	}
	if a.Content == "" {
		a.Content = obj.Content
	}
	return a, nil
}

// DecodeLocation maps a stores object.
func DecodeLocation(obj Object) (Location, error) {
	var s Location
	if err := decodeMetadata(obj, KindStores, &s); err != nil {
		return Location{}, err
	}
	s.ID, s.Slug, s.Title = obj.ID, obj.Slug, obj.Title
	if s.Name == "" {
		s.Name = obj.Title
	}
	return s, nil
}

// DecodePage maps a pages object.
func DecodePage(obj Object) (Page, error) {
	var p Page
	if err := decodeMetadata(obj, KindPages, &p); err != nil {
		return Page{}, err
	}
	p.ID, p.Slug, p.Locale = obj.ID, obj.Slug, obj.Locale
	if p.Title == "" {
		p.Title = obj.Title
	}
	if p.Content == "" {
		p.Content = obj.Content
	}
	return p, nil
}

// DecodeCollection maps a collections object.
func DecodeCollection(obj Object) (Collection, error) {
	var c Collection
	if err := decodeMetadata(obj, KindCollections, &c); err != nil {
		return Collection{}, err
	}
	c.ID, c.Slug, c.Title = obj.ID, obj.Slug, obj.Title
	if c.Name == "" {
		c.Name = obj.Title
	}
	return c, nil
}
