package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func productionEnv() map[string]string {
	return map[string]string{
		"STOREFRONT_CMS_BUCKET":   "storefront-prod",
		"STOREFRONT_CMS_READ_KEY": "read-key",
		"STOREFRONT_MAIL_API_KEY": "re_123",
		"STOREFRONT_MAIL_FROM":    "Store <noreply@example.com>",
		"STOREFRONT_MAIL_INBOX":   "owner@example.com",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(productionEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Environment != "local" || cfg.Server.Production() {
		t.Errorf("expected local environment, got %s", cfg.Server.Environment)
	}
	if cfg.CMS.BaseURL != defaultCMSBaseURL {
		t.Errorf("expected default cms base url, got %s", cfg.CMS.BaseURL)
	}
	if cfg.CMS.Timeout != 5*time.Second {
		t.Errorf("unexpected cms timeout: %s", cfg.CMS.Timeout)
	}
	if cfg.Locale.CookieName != "site-locale" || cfg.Locale.ForwardedHeader != "X-Locale" {
		t.Errorf("unexpected locale config %+v", cfg.Locale)
	}
	if cfg.Search.DefaultLimit != 20 || cfg.Search.MaxLimit != 100 {
		t.Errorf("unexpected search limits %+v", cfg.Search)
	}
	if len(cfg.Catalog.AudienceCategories) != 0 {
		t.Errorf("expected no audience categories, got %v", cfg.Catalog.AudienceCategories)
	}
	if len(cfg.Server.CORSOrigins) != 0 {
		t.Errorf("expected no cors origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.CMS.WatchFixtures {
		t.Errorf("expected fixture watching to follow dev mode")
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := productionEnv()
	env["PORT"] = "7000"
	env["STOREFRONT_PORT"] = "9090"
	env["STOREFRONT_ENV"] = "Production"
	env["STOREFRONT_CMS_TIMEOUT"] = "2s"
	env["STOREFRONT_CMS_READ_KEY"] = "sm://cms/read-key"
	env["STOREFRONT_MAIL_API_KEY"] = "secret://mail/api-key"
	env["STOREFRONT_LOCALE_COOKIE"] = "nike-locale"
	env["STOREFRONT_SEARCH_DEFAULT_LIMIT"] = "10"
	env["STOREFRONT_SEARCH_MAX_LIMIT"] = "50"
	env["STOREFRONT_AUDIENCE_CATEGORIES"] = "men=cat-a|cat-b, Women=cat-c,broken"
	env["STOREFRONT_CORS_ORIGINS"] = "https://shop.example.com, https://preview.example.com"

	secrets := map[string]string{
		"secret://cms/read-key": "resolved-read-key",
		"secret://mail/api-key": "resolved-mail-key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected STOREFRONT_PORT to win over PORT, got %s", cfg.Server.Port)
	}
	if !cfg.Server.Production() {
		t.Errorf("expected production environment, got %s", cfg.Server.Environment)
	}
	if cfg.CMS.Timeout != 2*time.Second {
		t.Errorf("unexpected cms timeout: %s", cfg.CMS.Timeout)
	}
	if cfg.CMS.ReadKey != "resolved-read-key" || cfg.Mail.APIKey != "resolved-mail-key" {
		t.Errorf("expected secrets to resolve, got %q %q", cfg.CMS.ReadKey, cfg.Mail.APIKey)
	}
	if cfg.Locale.CookieName != "nike-locale" {
		t.Errorf("unexpected cookie name %s", cfg.Locale.CookieName)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.MaxLimit != 50 {
		t.Errorf("unexpected search limits %+v", cfg.Search)
	}
	men := cfg.Catalog.AudienceCategories["men"]
	if len(men) != 2 || men[0] != "cat-a" || men[1] != "cat-b" {
		t.Errorf("unexpected men categories %v", men)
	}
	if women := cfg.Catalog.AudienceCategories["women"]; len(women) != 1 || women[0] != "cat-c" {
		t.Errorf("unexpected women categories %v", women)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("unexpected cors origins %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadPortFallsBackToPORT(t *testing.T) {
	env := productionEnv()
	env["PORT"] = "7000"

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("expected PORT fallback, got %s", cfg.Server.Port)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local\nexport STOREFRONT_PORT=7070\nSTOREFRONT_DEV=true\nSTOREFRONT_CMS_FIXTURES=\"fixtures\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if !cfg.Server.DevMode || !cfg.CMS.WatchFixtures {
		t.Errorf("expected dev mode with fixture watching")
	}
	if cfg.CMS.FixturesDir != "fixtures" {
		t.Errorf("expected quoted value to be unwrapped, got %s", cfg.CMS.FixturesDir)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := map[string]bool{"CMS.Bucket": true, "CMS.ReadKey": true, "Mail.APIKey": true, "Mail.From": true, "Mail.Inbox": true}
	for _, field := range validation.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Errorf("expected fields to be reported: %v", want)
	}
}

func TestLoadDevModeSkipsUpstreamCredentials(t *testing.T) {
	env := map[string]string{"STOREFRONT_DEV": "1"}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Server.DevMode {
		t.Fatalf("expected dev mode")
	}
	if cfg.CMS.FixturesDir != "content" {
		t.Errorf("unexpected fixtures dir %s", cfg.CMS.FixturesDir)
	}
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	env := productionEnv()
	env["STOREFRONT_SEARCH_DEFAULT_LIMIT"] = "40"
	env["STOREFRONT_SEARCH_MAX_LIMIT"] = "30"
	env["STOREFRONT_PORT"] = "http"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) != 2 || fields[0] != "Server.Port" || fields[1] != "Search.MaxLimit" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := productionEnv()
	env["STOREFRONT_MAIL_API_KEY"] = "sm://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unconfigured resolver cause, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "STOREFRONT_SECRETS_PROJECT=dot-project\nSTOREFRONT_SECRETS_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("STOREFRONT_SECRETS_PROJECT", "os-project")
	t.Setenv("STOREFRONT_ENV", "prod")

	overrides := map[string]string{"STOREFRONT_SECRETS_PROJECT": "override-project"}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["STOREFRONT_SECRETS_PROJECT"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["STOREFRONT_SECRETS_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["STOREFRONT_ENV"]; got != "prod" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestIsSecretReference(t *testing.T) {
	for value, want := range map[string]bool{
		"sm://cms/key":     true,
		" secret://x ":     true,
		"re_live_123":      false,
		"https://sm://bad": false,
	} {
		if got := IsSecretReference(value); got != want {
			t.Errorf("IsSecretReference(%q) = %v, want %v", value, got, want)
		}
	}
}
