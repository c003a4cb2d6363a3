package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultEnvironment     = "local"
	defaultCMSBaseURL      = "https://api.cosmicjs.com/v3"
	defaultCMSTimeout      = 5 * time.Second
	defaultFixturesDir     = "content"
	defaultMailBaseURL     = "https://api.resend.com"
	defaultMailTimeout     = 10 * time.Second
	defaultLocaleCookie    = "site-locale"
	defaultLocaleHeader    = "X-Locale"
	defaultLocaleStorage   = "site-locale"
	defaultSearchLimit     = 20
	defaultSearchMaxLimit  = 100
	defaultRequestTimeout  = 30 * time.Second
	defaultContactMaxBytes = 64 << 10
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	CMS     CMSConfig
	Mail    MailConfig
	Locale  LocaleConfig
	Search  SearchConfig
	Catalog CatalogConfig
	Secrets SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	Environment     string
	DevMode         bool
	CORSOrigins     []string
	ContactMaxBytes int64
}

// Production reports whether the service runs in the production environment.
func (s ServerConfig) Production() bool {
	switch s.Environment {
	case "prod", "production":
		return true
	}
	return false
}

// CMSConfig configures the headless content API.
type CMSConfig struct {
	BaseURL       string
	Bucket        string
	ReadKey       string
	Timeout       time.Duration
	FixturesDir   string
	WatchFixtures bool
}

// MailConfig configures the transactional email API.
type MailConfig struct {
	BaseURL string
	APIKey  string
	From    string
	Inbox   string
	Timeout time.Duration
}

// LocaleConfig names the carriers of the locale preference.
type LocaleConfig struct {
	CookieName      string
	ForwardedHeader string
	StorageKey      string
}

// SearchConfig bounds the full search variant.
type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// CatalogConfig holds content wiring that differs per bucket.
type CatalogConfig struct {
	// AudienceCategories maps a landing audience (men, women) to category ids.
	AudienceCategories map[string][]string
}

// SecretsConfig configures Secret Manager lookups for sm:// references.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the dotenv path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects values that win over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

func newEnv(opts []Option) (env, *loaderOptions, error) {
	options := &loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(options)
	}
	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return env{}, nil, err
	}
	return env{explicit: options.envMap, system: options.useSystemEnv, dotenv: dotenv}, options, nil
}

// EnvironmentValues flattens the same layers Load reads. The secret fetcher is built from
// it before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	e, _, err := newEnv(opts)
	if err != nil {
		return nil, err
	}
	return e.all(), nil
}

// Load reads defaults, the dotenv file, the process environment and explicit values, then
// resolves secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	e, options, err := newEnv(opts)
	if err != nil {
		return Config{}, err
	}

	devMode := e.flag("STOREFRONT_DEV", false)
	cfg := Config{
		Server: ServerConfig{
			Port:            e.str("STOREFRONT_PORT", e.str("PORT", defaultPort)),
			ReadTimeout:     e.duration("STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    e.duration("STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     e.duration("STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  e.duration("STOREFRONT_REQUEST_TIMEOUT", defaultRequestTimeout),
			Environment:     strings.ToLower(e.str("STOREFRONT_ENV", defaultEnvironment)),
			DevMode:         devMode,
			CORSOrigins:     e.list("STOREFRONT_CORS_ORIGINS"),
			ContactMaxBytes: int64(e.integer("STOREFRONT_CONTACT_MAX_BYTES", defaultContactMaxBytes)),
		},
		CMS: CMSConfig{
			BaseURL:       e.str("STOREFRONT_CMS_BASE_URL", defaultCMSBaseURL),
			Bucket:        e.str("STOREFRONT_CMS_BUCKET", ""),
			ReadKey:       e.str("STOREFRONT_CMS_READ_KEY", ""),
			Timeout:       e.duration("STOREFRONT_CMS_TIMEOUT", defaultCMSTimeout),
			FixturesDir:   e.str("STOREFRONT_CMS_FIXTURES", defaultFixturesDir),
			WatchFixtures: e.flag("STOREFRONT_CMS_WATCH", devMode),
		},
		Mail: MailConfig{
			BaseURL: e.str("STOREFRONT_MAIL_BASE_URL", defaultMailBaseURL),
			APIKey:  e.str("STOREFRONT_MAIL_API_KEY", ""),
			From:    e.str("STOREFRONT_MAIL_FROM", ""),
			Inbox:   e.str("STOREFRONT_MAIL_INBOX", ""),
			Timeout: e.duration("STOREFRONT_MAIL_TIMEOUT", defaultMailTimeout),
		},
		Locale: LocaleConfig{
			CookieName:      e.str("STOREFRONT_LOCALE_COOKIE", defaultLocaleCookie),
			ForwardedHeader: e.str("STOREFRONT_LOCALE_HEADER", defaultLocaleHeader),
			StorageKey:      e.str("STOREFRONT_LOCALE_STORAGE_KEY", defaultLocaleStorage),
		},
		Search: SearchConfig{
			DefaultLimit: e.integer("STOREFRONT_SEARCH_DEFAULT_LIMIT", defaultSearchLimit),
			MaxLimit:     e.integer("STOREFRONT_SEARCH_MAX_LIMIT", defaultSearchMaxLimit),
		},
		Catalog: CatalogConfig{
			AudienceCategories: e.groups("STOREFRONT_AUDIENCE_CATEGORIES"),
		},
		Secrets: SecretsConfig{
			ProjectID:    e.str("STOREFRONT_SECRETS_PROJECT", ""),
			FallbackFile: e.str("STOREFRONT_SECRETS_FALLBACK_FILE", ".secrets.local"),
		},
	}

	for _, field := range []*string{&cfg.CMS.ReadKey, &cfg.Mail.APIKey} {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsSecretReference reports whether value points at Secret Manager rather than holding a literal.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	ref := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
		ref = "secret://" + rest
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func (cfg Config) validate() error {
	var bad []string
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	_, portErr := strconv.Atoi(cfg.Server.Port)
	check(portErr == nil, "Server.Port")
	check(cfg.CMS.Timeout > 0, "CMS.Timeout")
	check(cfg.Search.DefaultLimit > 0, "Search.DefaultLimit")
	check(cfg.Search.MaxLimit >= cfg.Search.DefaultLimit, "Search.MaxLimit")
	check(strings.TrimSpace(cfg.Locale.CookieName) != "", "Locale.CookieName")

	if cfg.Server.DevMode {
		check(cfg.CMS.FixturesDir != "", "CMS.FixturesDir")
	} else {
		_, urlErr := url.ParseRequestURI(cfg.CMS.BaseURL)
		check(urlErr == nil, "CMS.BaseURL")
		check(cfg.CMS.Bucket != "", "CMS.Bucket")
		check(cfg.CMS.ReadKey != "", "CMS.ReadKey")
		check(cfg.Mail.APIKey != "", "Mail.APIKey")
		check(cfg.Mail.From != "", "Mail.From")
		check(cfg.Mail.Inbox != "", "Mail.Inbox")
	}

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}
