package cms

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFilterMarshalJSON(t *testing.T) {
	q := Query{
		Type: KindProducts,
		Filter: All(
			Eq("locale", "fr"),
			AnyOf(
				Contains("title", "air+max"),
				Contains("metadata.name", "air+max"),
			),
			In("metadata.category", "cat-1", "cat-2"),
		),
	}

	raw, err := json.Marshal(q.Document())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"$or":[{"title":{"$options":"i","$regex":"air\\+max"}},{"metadata.name":{"$options":"i","$regex":"air\\+max"}}],` +
		`"locale":"fr","metadata.category":{"$in":["cat-1","cat-2"]},"type":"products"}`
	if diff := cmp.Diff(want, string(raw)); diff != "" {
		t.Fatalf("unexpected query document (-want +got):\n%s", diff)
	}
}

func TestFilterMarshalCollidingKeysUseAnd(t *testing.T) {
	f := All(
		AnyOf(Eq("metadata.featured", true)),
		AnyOf(Eq("metadata.new_release", true)),
	)
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"$and":[{"$or":[{"metadata.new_release":true}]}],"$or":[{"metadata.featured":true}]}`
	if string(raw) != want {
		t.Fatalf("unexpected document %s", raw)
	}
}

func TestFilterMatch(t *testing.T) {
	obj := Object{
		ID:     "p1",
		Slug:   "air-jordan-retro",
		Title:  "Air Jordan Retro",
		Type:   KindProducts,
		Locale: "en",
		Metadata: map[string]any{
			"description":  "Court classic (1985)",
			"featured":     true,
			"price":        float64(180),
			"category":     map[string]any{"id": "cat-1", "slug": "basketball"},
			"product_type": map[string]any{"key": "shoes", "value": "Shoes"},
			"tags":         []any{"retro", "court"},
		},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter", Filter{}, true},
		{"type", Eq("type", "products"), true},
		{"locale mismatch", Eq("locale", "fr"), false},
		{"contains is case-insensitive", Contains("title", "jordan"), true},
		{"contains is literal", Contains("metadata.description", "(1985)"), true},
		{"contains regex metachar", Contains("title", "air.*"), false},
		{"bool", Eq("metadata.featured", true), true},
		{"number", Eq("metadata.price", 180), true},
		{"embedded reference by id", Eq("metadata.category", "cat-1"), true},
		{"nested path", In("metadata.product_type.key", "shoes", "equipment"), true},
		{"list element", Eq("metadata.tags", "court"), true},
		{"missing field", Eq("metadata.sale_price", 100), false},
		{"any of", AnyOf(Contains("metadata.name", "jordan"), Contains("title", "retro")), true},
		{"all", All(Eq("type", "products"), Eq("locale", "en"), Eq("slug", "other")), false},
		{"and", Eq("type", "products").And(Eq("metadata.featured", true)), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(obj); got != tc.want {
				t.Fatalf("Match = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(Filter{}).IsZero() || !All(All()).IsZero() {
		t.Fatal("expected empty filters to be zero")
	}
	if All(Eq("slug", "x")).IsZero() {
		t.Fatal("expected populated filter to be non-zero")
	}
}

func TestParseKind(t *testing.T) {
	for raw, want := range map[string]Kind{
		"products":   KindProducts,
		"product":    KindProducts,
		"category":   KindCategories,
		"Articles":   KindArticles,
		"athlete":    KindAthletes,
		"stores":     KindStores,
		"page":       KindPages,
		"collection": KindCollections,
	} {
		got, ok := ParseKind(raw)
		if !ok || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseKind("widgets"); ok {
		t.Error("expected unknown kind to be rejected")
	}
	if !KindProducts.Localized() || !KindPages.Localized() || KindCategories.Localized() {
		t.Error("unexpected localized kinds")
	}
}
