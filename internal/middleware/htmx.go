package middleware

import (
	"context"
	"net/http"
	"strings"
)

type htmxKey struct{}

// HTMXRequest holds the htmx request headers the storefront reacts to.
type HTMXRequest struct {
	Enabled bool
	Boosted bool
	// CurrentURL is the browser location when the request was issued.
	CurrentURL string
}

// HTMX records htmx request headers on the context and varies responses on HX-Request,
// since htmx requests get fragments and plain ones get full pages or redirects.
func HTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hx := HTMXRequest{
			Enabled:    r.Header.Get("HX-Request") == "true",
			Boosted:    r.Header.Get("HX-Boosted") == "true",
			CurrentURL: strings.TrimSpace(r.Header.Get("HX-Current-URL")),
		}
		w.Header().Add("Vary", "HX-Request")
		next.ServeHTTP(w, r.WithContext(WithHTMX(r.Context(), hx)))
	})
}

// WithHTMX stores hx on ctx.
func WithHTMX(ctx context.Context, hx HTMXRequest) context.Context {
	return context.WithValue(ctx, htmxKey{}, hx)
}

// HTMXFrom returns the htmx headers recorded for the request.
func HTMXFrom(ctx context.Context) HTMXRequest {
	hx, _ := ctx.Value(htmxKey{}).(HTMXRequest)
	return hx
}

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(ctx context.Context) bool {
	return HTMXFrom(ctx).Enabled
}
