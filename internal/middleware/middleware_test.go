package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finitefield.org/storefront/internal/locale"
)

func TestLocaleResolvesOncePerRequest(t *testing.T) {
	var got locale.Code
	handler := Locale(locale.DefaultCarriers())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = locale.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "site-locale", Value: "de"})
	req.Header.Set("Accept-Language", "fr-CA,fr;q=0.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != locale.German {
		t.Fatalf("expected cookie locale de, got %s", got)
	}
	if rec.Header().Get("Content-Language") != "de" {
		t.Fatalf("expected Content-Language de, got %q", rec.Header().Get("Content-Language"))
	}
	vary := strings.Join(rec.Header().Values("Vary"), ",")
	if vary != "Cookie,Accept-Language,X-Locale,X-Client-Locale" {
		t.Fatalf("unexpected Vary %v", vary)
	}
}

func TestLocaleVaryFollowsCarriers(t *testing.T) {
	carriers := locale.Carriers{CookieName: "lang"}
	handler := Locale(carriers)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	vary := strings.Join(rec.Header().Values("Vary"), ",")
	if vary != "Cookie,Accept-Language" {
		t.Fatalf("unexpected Vary %v", vary)
	}
}

func TestLocaleForwardedHeaderWins(t *testing.T) {
	var got locale.Code
	handler := Locale(locale.DefaultCarriers())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = locale.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Locale", "es")
	req.AddCookie(&http.Cookie{Name: "site-locale", Value: "de"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != locale.Spanish {
		t.Fatalf("expected forwarded locale es, got %s", got)
	}
}

func TestHTMX(t *testing.T) {
	var hx HTMXRequest
	handler := HTMX(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hx = HTMXFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/locale", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Current-URL", "https://shop.example.com/products/air-max-90")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !hx.Enabled || hx.CurrentURL != "https://shop.example.com/products/air-max-90" {
		t.Fatalf("expected htmx request to be recorded, got %+v", hx)
	}
	if rec.Header().Get("Vary") != "HX-Request" {
		t.Fatalf("expected Vary HX-Request, got %q", rec.Header().Get("Vary"))
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/locale", nil))
	if hx.Enabled {
		t.Fatal("plain request must not be marked as htmx")
	}
	if IsHTMX(context.Background()) {
		t.Fatal("expected false outside a request")
	}
}
