package locale

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CookieMaxAge is the lifetime of the persisted preference.
const CookieMaxAge = 365 * 24 * time.Hour

// ChangedEvent is the htmx trigger name announcing a new preference to client script.
const ChangedEvent = "locale-changed"

// Carriers names where the preference travels between requests.
type Carriers struct {
	CookieName      string
	ForwardedHeader string
	// ClientHeader carries the client-local mirror when client script forwards it.
	ClientHeader string
	StorageKey   string
	Secure       bool
}

// DefaultCarriers mirrors the deployed cookie and header names.
func DefaultCarriers() Carriers {
	return Carriers{
		CookieName:      "site-locale",
		ForwardedHeader: "X-Locale",
		ClientHeader:    "X-Client-Locale",
		StorageKey:      "site-locale",
	}
}

// FromRequest collects the candidate signals carried by r.
func (c Carriers) FromRequest(r *http.Request) Sources {
	src := Sources{AcceptLanguage: r.Header.Get("Accept-Language")}
	if c.ForwardedHeader != "" {
		src.Forwarded = r.Header.Get(c.ForwardedHeader)
	}
	if c.CookieName != "" {
		if cookie, err := r.Cookie(c.CookieName); err == nil {
			src.Cookie = cookie.Value
		}
	}
	if c.ClientHeader != "" {
		src.ClientStored = r.Header.Get(c.ClientHeader)
	}
	return src
}

// PreferenceWriter stores an explicit locale choice somewhere durable.
type PreferenceWriter interface {
	WritePreference(ctx context.Context, code Code) error
}

// Persist writes code through every writer. Failures are logged and never returned.
func Persist(ctx context.Context, logger *zap.Logger, code Code, writers ...PreferenceWriter) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, writer := range writers {
		if writer == nil {
			continue
		}
		if err := writer.WritePreference(ctx, code); err != nil {
			logger.Warn("locale: persist preference failed",
				zap.String("locale", code.String()),
				zap.String("writer", fmt.Sprintf("%T", writer)),
				zap.Error(err),
			)
		}
	}
}

// CookieWriter sets the long-lived preference cookie on a response.
type CookieWriter struct {
	W      http.ResponseWriter
	Name   string
	Secure bool
}

// WritePreference implements PreferenceWriter.
func (c CookieWriter) WritePreference(_ context.Context, code Code) error {
	if c.W == nil {
		return fmt.Errorf("locale: cookie writer has no response")
	}
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    code.String(),
		Path:     "/",
		MaxAge:   int(CookieMaxAge / time.Second),
		Expires:  time.Now().Add(CookieMaxAge),
		SameSite: http.SameSiteLaxMode,
		Secure:   c.Secure,
		HttpOnly: false,
	}
	if err := cookie.Valid(); err != nil {
		return fmt.Errorf("locale: invalid cookie: %w", err)
	}
	http.SetCookie(c.W, cookie)
	return nil
}

// ClientMirrorWriter asks client script, through an HX-Trigger event, to mirror the choice into local storage.
type ClientMirrorWriter struct {
	W          http.ResponseWriter
	StorageKey string
}

// WritePreference implements PreferenceWriter.
func (c ClientMirrorWriter) WritePreference(_ context.Context, code Code) error {
	if c.W == nil {
		return fmt.Errorf("locale: client mirror writer has no response")
	}
	payload, err := json.Marshal(map[string]any{
		ChangedEvent: map[string]string{
			"locale":     code.String(),
			"storageKey": c.StorageKey,
		},
	})
	if err != nil {
		return fmt.Errorf("locale: encode trigger: %w", err)
	}
	c.W.Header().Set("HX-Trigger", string(payload))
	return nil
}

// Writers returns the cookie and client mirror writers for w.
func (c Carriers) Writers(w http.ResponseWriter) []PreferenceWriter {
	return []PreferenceWriter{
		CookieWriter{W: w, Name: c.CookieName, Secure: c.Secure},
		ClientMirrorWriter{W: w, StorageKey: c.StorageKey},
	}
}
