// Package locale decides which language variant of content a request is served and
// persists a visitor's explicit choice.
package locale

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// Code is a supported locale identifier.
type Code string

const (
	English Code = "en"
	Spanish Code = "es"
	French  Code = "fr"
	German  Code = "de"

	// Default is served when no source yields a supported code.
	Default = English
)

// Info describes a locale for language pickers.
type Info struct {
	Code Code   `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

var supported = []Info{
	{Code: English, Name: "English", Flag: "🇺🇸"},
	{Code: Spanish, Name: "Español", Flag: "🇪🇸"},
	{Code: French, Name: "Français", Flag: "🇫🇷"},
	{Code: German, Name: "Deutsch", Flag: "🇩🇪"},
}

// Supported returns the supported locales in display order.
func Supported() []Info {
	out := make([]Info, len(supported))
	copy(out, supported)
	return out
}

// Valid reports whether raw is exactly one of the supported codes. Matching is case-sensitive.
func Valid(raw string) bool {
	for _, info := range supported {
		if string(info.Code) == raw {
			return true
		}
	}
	return false
}

// Parse returns the code for raw when it is supported.
func Parse(raw string) (Code, bool) {
	if !Valid(raw) {
		return "", false
	}
	return Code(raw), true
}

// String implements fmt.Stringer.
func (c Code) String() string { return string(c) }

// IsDefault reports whether c is the default locale.
func (c Code) IsDefault() bool { return c == Default }

// Sources carries the candidate signals for one request, in precedence order.
type Sources struct {
	// Forwarded is the marker attached by an upstream gate.
	Forwarded string
	// Cookie is the persisted preference.
	Cookie string
	// ClientStored is the client-local mirror. It is consulted only when Cookie holds no supported code.
	ClientStored string
	// AcceptLanguage is the raw browser language header.
	AcceptLanguage string
}

// Resolve returns the first supported code among src, falling back to Default. It never fails.
func Resolve(src Sources) Code {
	if code, ok := Parse(src.Forwarded); ok {
		return code
	}
	if code, ok := Parse(src.Cookie); ok {
		return code
	}
	if !Valid(src.Cookie) {
		if code, ok := Parse(src.ClientStored); ok {
			return code
		}
	}
	if code, ok := fromBrowser(src.AcceptLanguage); ok {
		return code
	}
	return Default
}

// fromBrowser walks the Accept-Language list in preference order and reduces each tag to its primary subtag.
func fromBrowser(header string) (Code, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return "", false
	}
	for _, tag := range tags {
		base, confidence := tag.Base()
		if confidence != language.Exact {
			continue
		}
		if code, ok := Parse(base.String()); ok {
			return code, true
		}
	}
	return "", false
}

type ctxKey struct{}

// WithContext stores the resolved code for the rest of the request.
func WithContext(ctx context.Context, code Code) context.Context {
	return context.WithValue(ctx, ctxKey{}, code)
}

// FromContext returns the code resolved at the request boundary, or Default.
func FromContext(ctx context.Context) Code {
	if ctx == nil {
		return Default
	}
	if code, ok := ctx.Value(ctxKey{}).(Code); ok && code != "" {
		return code
	}
	return Default
}
