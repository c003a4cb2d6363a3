package cms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CategoryRef is a product's category field: either a bare id or an embedded category,
// depending on the query depth.
type CategoryRef struct {
	id       string
	embedded *Category
}

// RefByID references a category by identifier.
func RefByID(id string) CategoryRef {
	return CategoryRef{id: id}
}

// RefEmbedded references a fully expanded category.
func RefEmbedded(c Category) CategoryRef {
	return CategoryRef{embedded: &c}
}

// CategoryKeyOf returns the identifier a reference points at, whatever its shape.
func CategoryKeyOf(ref CategoryRef) string {
	if ref.embedded != nil {
		return ref.embedded.ID
	}
	return ref.id
}

// IsZero reports whether the reference is empty.
func (r CategoryRef) IsZero() bool {
	return CategoryKeyOf(r) == ""
}

// Embedded returns the expanded category when the store inlined it.
func (r CategoryRef) Embedded() (Category, bool) {
	if r.embedded == nil {
		return Category{}, false
	}
	return *r.embedded, true
}

// Matches reports whether r points at c. Bare references written by editors may hold the slug.
func (r CategoryRef) Matches(c Category) bool {
	key := CategoryKeyOf(r)
	return key != "" && (key == c.ID || key == c.Slug)
}

// UnmarshalJSON accepts null, a string id, or an embedded object.
func (r *CategoryRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = CategoryRef{}
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &r.id)
	case data[0] == '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("cms: category reference: %w", err)
		}
		category, err := DecodeCategory(obj)
		if err != nil {
			return err
		}
		r.embedded = &category
		return nil
	}
	return fmt.Errorf("cms: category reference: unexpected JSON %q", string(data))
}

// MarshalJSON writes the id for bare references and the category for embedded ones.
func (r CategoryRef) MarshalJSON() ([]byte, error) {
	if r.embedded != nil {
		return json.Marshal(r.embedded)
	}
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}
