package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/storefront/internal/platform/requestctx"
)

func TestAccessLogLevels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok", http.StatusOK, zapcore.InfoLevel},
		{"client error", http.StatusBadRequest, zapcore.WarnLevel},
		{"server error", http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := AccessLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=run", nil))

			entries := logs.FilterMessage("request completed").All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 completion entry, got %d", len(entries))
			}
			if entries[0].Level != tc.level {
				t.Fatalf("expected level %s, got %s", tc.level, entries[0].Level)
			}
			if got := entries[0].ContextMap()["status"]; got != int64(tc.status) {
				t.Fatalf("expected status field %d, got %v", tc.status, got)
			}
		})
	}
}

func TestAccessLogRecordsLocaleAndRoute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(AccessLog(zap.New(core)))
	r.Get("/products/{slug}", func(w http.ResponseWriter, r *http.Request) {
		if requestctx.Logger(r.Context()) == requestctx.NoopLogger() {
			t.Errorf("expected a request-scoped logger")
		}
		w.Header().Set("Content-Language", "fr")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/products/air-max-90", nil)
	req.Header.Set("HX-Request", "true")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/products/{slug}" {
		t.Fatalf("expected the route pattern, got %v", fields["route"])
	}
	if fields["locale"] != "fr" {
		t.Fatalf("expected locale fr, got %v", fields["locale"])
	}
	if fields["htmx"] != true {
		t.Fatalf("expected htmx flag, got %v", fields["htmx"])
	}
}

func TestRecoverWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := AccessLog(zap.New(core))(Recover(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged through the request logger")
	}
	if logs.FilterMessage("request completed").FilterField(zap.Int("status", http.StatusInternalServerError)).Len() != 1 {
		t.Fatalf("expected the completion line to report 500")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := sanitizeString("a\nb\x00c", 10); got != "abc" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := sanitizeString("chaussures de course", 10); got != "chaussures" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := SanitizeQuery("  " + strings.Repeat("é", 100)); len([]rune(got)) != 64 {
		t.Fatalf("expected 64 runes, got %d", len([]rune(got)))
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected empty route to become /, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != zapcore.DebugLevel {
		t.Fatalf("expected debug level")
	}
	if parseLevel("chatty") != zapcore.InfoLevel || parseLevel("") != zapcore.InfoLevel {
		t.Fatalf("expected unknown levels to mean info")
	}
}
