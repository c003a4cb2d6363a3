// Command cmsctl queries the storefront content through the same gateway the web service uses.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/platform/config"
	"finitefield.org/storefront/internal/platform/observability"
	"finitefield.org/storefront/internal/platform/secrets"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cmsctl:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	fixtures string
	baseURL  string
	bucket   string
	readKey  string
	timeout  time.Duration
	verbose  bool

	logger *zap.Logger
	// env overrides the process environment in tests.
	env map[string]string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cmsctl",
		Short:         "Inspect storefront content",
		Long:          "cmsctl runs catalog queries against the content API, or against a fixture directory with --fixtures.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logger != nil {
				return nil
			}
			if !opts.verbose {
				opts.logger = zap.NewNop()
				return nil
			}
			logger, err := observability.NewLoggerWithLevel("debug")
			if err != nil {
				return err
			}
			opts.logger = logger.Named("cmsctl")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.fixtures, "fixtures", "", "serve content from a fixture directory instead of the content API")
	flags.StringVar(&opts.baseURL, "base-url", "", "content API base URL (default $STOREFRONT_CMS_BASE_URL)")
	flags.StringVar(&opts.bucket, "bucket", "", "bucket slug (default $STOREFRONT_CMS_BUCKET)")
	flags.StringVar(&opts.readKey, "read-key", "", "bucket read key or secret reference (default $STOREFRONT_CMS_READ_KEY)")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stdout")

	root.AddCommand(
		newSearchCmd(opts),
		newGetCmd(opts),
		newCategoriesCmd(opts),
		newLocalesCmd(),
	)
	return root
}

// gateway builds the catalog gateway over the selected store.
func (o *rootOptions) gateway(ctx context.Context) (*catalog.Gateway, error) {
	store, err := o.store(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.NewGateway(catalog.GatewayDeps{Store: store, Logger: o.logger, Timeout: o.timeout})
}

func (o *rootOptions) store(ctx context.Context) (cms.Store, error) {
	if o.fixtures != "" {
		return cms.LoadDir(o.fixtures, o.logger)
	}

	env := o.env
	if env == nil {
		values, err := config.EnvironmentValues()
		if err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
		env = values
	}
	pick := func(flag, key, fallback string) string {
		if v := strings.TrimSpace(flag); v != "" {
			return v
		}
		if v := strings.TrimSpace(env[key]); v != "" {
			return v
		}
		return fallback
	}

	baseURL := pick(o.baseURL, "STOREFRONT_CMS_BASE_URL", "https://api.cosmicjs.com/v3")
	bucket := pick(o.bucket, "STOREFRONT_CMS_BUCKET", "")
	readKey := pick(o.readKey, "STOREFRONT_CMS_READ_KEY", "")
	if bucket == "" || readKey == "" {
		return nil, fmt.Errorf("a bucket and read key are required without --fixtures")
	}

	if config.IsSecretReference(readKey) {
		fetcher, err := secrets.NewFetcher(ctx,
			secrets.WithLogger(o.logger),
			secrets.WithProject(env["STOREFRONT_SECRETS_PROJECT"]),
			secrets.WithFallbackFile(pick("", "STOREFRONT_SECRETS_FALLBACK_FILE", ".secrets.local")),
		)
		if err != nil {
			return nil, fmt.Errorf("secret fetcher: %w", err)
		}
		defer fetcher.Close()
		resolved, err := fetcher.Resolve(ctx, readKey)
		if err != nil {
			return nil, fmt.Errorf("resolve read key: %w", err)
		}
		readKey = resolved
	}

	return cms.NewClient(baseURL, bucket, readKey, cms.WithLogger(o.logger)), nil
}
