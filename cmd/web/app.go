package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/handlers"
	"finitefield.org/storefront/internal/locale"
	"finitefield.org/storefront/internal/mail"
	"finitefield.org/storefront/internal/platform/config"
	"finitefield.org/storefront/internal/platform/observability"
)

const (
	devFromAddress  = "Storefront <noreply@localhost>"
	devInboxAddress = "contact@localhost"
	compressLevel   = 5
)

type application struct {
	handler http.Handler
	store   cms.Store
	contact *mail.ContactService
}

// newApplication wires the content store, gateway, mail and router for cfg.
// Fixture watching, when enabled, stops with ctx.
func newApplication(ctx context.Context, cfg config.Config, logger *zap.Logger, startedAt time.Time) (*application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := newContentStore(ctx, cfg, logger.Named("cms"))
	if err != nil {
		return nil, err
	}

	gateway, err := catalog.NewGateway(catalog.GatewayDeps{
		Store:              store,
		Logger:             logger.Named("catalog"),
		Timeout:            cfg.CMS.Timeout,
		DefaultLimit:       cfg.Search.DefaultLimit,
		AudienceCategories: cfg.Catalog.AudienceCategories,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise catalog: %w", err)
	}

	contact, err := newContactService(cfg, logger.Named("mail"))
	if err != nil {
		return nil, fmt.Errorf("initialise contact: %w", err)
	}

	carriers := locale.DefaultCarriers()
	carriers.CookieName = cfg.Locale.CookieName
	carriers.ForwardedHeader = cfg.Locale.ForwardedHeader
	carriers.StorageKey = cfg.Locale.StorageKey
	carriers.Secure = cfg.Server.Production()

	storefront := handlers.NewStorefrontHandlers(
		handlers.WithCatalog(gateway),
		handlers.WithContactSender(contact),
		handlers.WithLocaleCarriers(carriers),
		handlers.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		handlers.WithContactBodyLimit(cfg.Server.ContactMaxBytes),
	)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthEnvironment(cfg.Server.Environment),
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithReadinessCheck("cms", storeReadiness(store, cfg.CMS.Timeout)),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.Tracing(),
			observability.AccessLog(httpLogger),
			observability.Recover(httpLogger),
			middleware.Compress(compressLevel),
		),
		handlers.WithCORSOrigins(cfg.Server.CORSOrigins...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(health),
		handlers.WithStorefrontRoutes(storefront.Routes),
	)

	return &application{handler: router, store: store, contact: contact}, nil
}

// newContentStore serves fixtures in dev mode and the content API otherwise.
func newContentStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (cms.Store, error) {
	if !cfg.Server.DevMode {
		return cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.Bucket, cfg.CMS.ReadKey,
			cms.WithHTTPClient(&http.Client{Timeout: cfg.CMS.Timeout}),
			cms.WithLogger(logger),
		), nil
	}

	store, err := cms.LoadDir(cfg.CMS.FixturesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	logger.Info("serving content fixtures", zap.String("dir", cfg.CMS.FixturesDir), zap.Int("objects", store.Len()))
	if cfg.CMS.WatchFixtures {
		if err := store.Watch(ctx, 0); err != nil {
			logger.Warn("fixture watch disabled", zap.Error(err))
		}
	}
	return store, nil
}

// newContactService delivers through the mail API, or logs messages in dev mode without an API key.
func newContactService(cfg config.Config, logger *zap.Logger) (*mail.ContactService, error) {
	from, inbox := strings.TrimSpace(cfg.Mail.From), strings.TrimSpace(cfg.Mail.Inbox)

	var sender mail.Sender
	if cfg.Server.DevMode && strings.TrimSpace(cfg.Mail.APIKey) == "" {
		sender = mail.LogSender{Logger: logger}
		if from == "" {
			from = devFromAddress
		}
		if inbox == "" {
			inbox = devInboxAddress
		}
	} else {
		sender = mail.NewResendClient(cfg.Mail.BaseURL, cfg.Mail.APIKey, mail.WithTimeout(cfg.Mail.Timeout))
	}

	return mail.NewContactService(mail.ContactServiceDeps{
		Sender: sender,
		From:   from,
		Inbox:  inbox,
		Logger: logger,
	})
}

// storeReadiness probes the store with a single-object query; an empty bucket is still ready.
func storeReadiness(store cms.Store, timeout time.Duration) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		_, err := store.FindOne(ctx, cms.Query{Type: cms.KindCategories, Props: []string{"id"}, Limit: 1})
		if err == nil || errors.Is(err, cms.ErrNotFound) {
			return nil
		}
		return err
	}
}
