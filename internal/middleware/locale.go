package middleware

import (
	"net/http"

	"finitefield.org/storefront/internal/locale"
)

// Locale resolves the request locale once from the carriers and stores it in the context.
// Downstream handlers read it with locale.FromContext.
func Locale(carriers locale.Carriers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := locale.Resolve(carriers.FromRequest(r))
			h := w.Header()
			h.Set("Content-Language", code.String())
			h.Add("Vary", "Cookie")
			h.Add("Vary", "Accept-Language")
			if carriers.ForwardedHeader != "" {
				h.Add("Vary", carriers.ForwardedHeader)
			}
			if carriers.ClientHeader != "" {
				h.Add("Vary", carriers.ClientHeader)
			}
			next.ServeHTTP(w, r.WithContext(locale.WithContext(r.Context(), code)))
		})
	}
}
