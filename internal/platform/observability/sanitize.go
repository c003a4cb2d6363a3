package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeString strips control runes, so request data cannot forge log lines, and caps
// the result at limit runes.
func sanitizeString(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if limit <= 0 || utf8.RuneCountInString(cleaned) <= limit {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:limit])
}

// SanitizeRoute bounds a path or route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds an HTTP method.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeQuery bounds a shopper's search term before it is logged.
func SanitizeQuery(q string) string {
	return sanitizeString(strings.TrimSpace(q), 64)
}
