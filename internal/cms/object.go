package cms

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when the content store has no object matching a query.
var ErrNotFound = errors.New("cms: not found")

// Kind is a content type slug in the bucket.
type Kind string

const (
	KindProducts    Kind = "products"
	KindCategories  Kind = "categories"
	KindAthletes    Kind = "athletes"
	KindArticles    Kind = "articles"
	KindStores      Kind = "stores"
	KindPages       Kind = "pages"
	KindCollections Kind = "collections"
)

var kinds = []Kind{KindProducts, KindCategories, KindAthletes, KindArticles, KindStores, KindPages, KindCollections}

// ParseKind accepts a type slug ("products") or its singular form ("product").
func ParseKind(raw string) (Kind, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, k := range kinds {
		if raw == string(k) || raw+"s" == string(k) || (k == KindCategories && raw == "category") {
			return k, true
		}
	}
	return "", false
}

// Localized reports whether objects of this kind carry a locale tag.
func (k Kind) Localized() bool {
	return k == KindProducts || k == KindPages
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Object is the generic envelope every bucket object shares.
type Object struct {
	ID         string         `json:"id"`
	Slug       string         `json:"slug"`
	Title      string         `json:"title"`
	Type       Kind           `json:"type"`
	Locale     string         `json:"locale,omitempty"`
	Content    string         `json:"content,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
}

// Field returns the value at a dotted path such as "slug" or "metadata.target_audience.key".
func (o Object) Field(path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	switch head {
	case "id":
		return o.ID, !nested
	case "slug":
		return o.Slug, !nested
	case "title":
		return o.Title, !nested
	case "type":
		return string(o.Type), !nested
	case "locale":
		return o.Locale, !nested
	case "content":
		return o.Content, !nested
	case "created_at":
		return o.CreatedAt.UTC().Format(time.RFC3339Nano), !nested
	case "modified_at":
		return o.ModifiedAt.UTC().Format(time.RFC3339Nano), !nested
	case "metadata":
		if !nested {
			return o.Metadata, o.Metadata != nil
		}
		return lookupPath(o.Metadata, rest)
	}
	return nil, false
}

func lookupPath(m map[string]any, path string) (any, bool) {
	var current any = m
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Clone returns a deep copy so cached objects are never mutated by callers.
func (o Object) Clone() Object {
	o.Metadata = cloneMap(o.Metadata)
	return o
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// IsNotFound reports whether err means the store has no matching object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
