package cms

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type filterOp int

const (
	opAll filterOp = iota
	opEq
	opIn
	opContains
	opAnyOf
)

// Filter is a query expression over object fields. The zero value matches everything.
type Filter struct {
	op       filterOp
	field    string
	value    any
	values   []any
	children []Filter
}

// Eq matches objects whose field equals value. Reference fields also match on the embedded object's id.
func Eq(field string, value any) Filter {
	return Filter{op: opEq, field: field, value: value}
}

// In matches objects whose field equals any of values.
func In(field string, values ...string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{op: opIn, field: field, values: vs}
}

// Contains matches a case-insensitive literal substring of a text field.
func Contains(field, text string) Filter {
	return Filter{op: opContains, field: field, value: text}
}

// AnyOf matches when at least one sub-filter matches.
func AnyOf(filters ...Filter) Filter {
	return Filter{op: opAnyOf, children: filters}
}

// All matches when every sub-filter matches.
func All(filters ...Filter) Filter {
	return Filter{op: opAll, children: filters}
}

// And returns f combined with more.
func (f Filter) And(more ...Filter) Filter {
	if f.op == opAll {
		children := make([]Filter, 0, len(f.children)+len(more))
		children = append(children, f.children...)
		return Filter{op: opAll, children: append(children, more...)}
	}
	return All(append([]Filter{f}, more...)...)
}

// IsZero reports whether f has no conditions.
func (f Filter) IsZero() bool {
	if f.op != opAll {
		return false
	}
	for _, child := range f.children {
		if !child.IsZero() {
			return false
		}
	}
	return true
}

// MarshalJSON renders the bucket API's query language.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.document())
}

func (f Filter) document() map[string]any {
	switch f.op {
	case opEq:
		return map[string]any{f.field: f.value}
	case opIn:
		return map[string]any{f.field: map[string]any{"$in": f.values}}
	case opContains:
		return map[string]any{f.field: map[string]any{
			"$regex":   regexp.QuoteMeta(fmt.Sprint(f.value)),
			"$options": "i",
		}}
	case opAnyOf:
		docs := make([]map[string]any, 0, len(f.children))
		for _, child := range f.children {
			docs = append(docs, child.document())
		}
		return map[string]any{"$or": docs}
	}

	out := map[string]any{}
	var and []map[string]any
	for _, child := range f.children {
		for key, value := range child.document() {
			if _, taken := out[key]; taken {
				and = append(and, map[string]any{key: value})
				continue
			}
			out[key] = value
		}
	}
	if len(and) > 0 {
		out["$and"] = and
	}
	return out
}

// Match evaluates f against obj in process.
func (f Filter) Match(obj Object) bool {
	switch f.op {
	case opEq:
		got, ok := obj.Field(f.field)
		return ok && valueEquals(got, f.value)
	case opIn:
		got, ok := obj.Field(f.field)
		if !ok {
			return false
		}
		for _, want := range f.values {
			if valueEquals(got, want) {
				return true
			}
		}
		return false
	case opContains:
		got, ok := obj.Field(f.field)
		if !ok {
			return false
		}
		text, ok := got.(string)
		return ok && strings.Contains(strings.ToLower(text), strings.ToLower(fmt.Sprint(f.value)))
	case opAnyOf:
		for _, child := range f.children {
			if child.Match(obj) {
				return true
			}
		}
		return false
	}
	for _, child := range f.children {
		if !child.Match(obj) {
			return false
		}
	}
	return true
}

// valueEquals compares a stored value with a wanted scalar. Embedded references compare by id
// and lists match when any element does.
func valueEquals(got, want any) bool {
	switch t := got.(type) {
	case map[string]any:
		id, ok := t["id"]
		return ok && valueEquals(id, want)
	case []any:
		for _, item := range t {
			if valueEquals(item, want) {
				return true
			}
		}
		return false
	case nil:
		return want == nil
	}
	if want == nil {
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}
