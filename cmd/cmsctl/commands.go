package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
)

var errAbsent = errors.New("no matching object")

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseLocaleFlag(raw string) (locale.Code, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return locale.Default, nil
	}
	code, ok := locale.Parse(raw)
	if !ok {
		return "", fmt.Errorf("unsupported locale %q", raw)
	}
	return code, nil
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		localeFlag string
		kind       string
		category   string
		limit      int
		inline     bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a storefront search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := parseLocaleFlag(localeFlag)
			if err != nil {
				return err
			}
			gateway, err := opts.gateway(cmd.Context())
			if err != nil {
				return err
			}
			if inline {
				result, err := gateway.InlineSearch(cmd.Context(), args[0], code)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}

			search := catalog.SearchOptions{Locale: code, Category: category, Limit: limit}
			if kind = strings.TrimSpace(kind); kind != "" {
				parsed, ok := cms.ParseKind(kind)
				if !ok {
					return fmt.Errorf("unknown type %q", kind)
				}
				search.Kinds = []cms.Kind{parsed}
			}
			result, err := gateway.Search(cmd.Context(), args[0], search)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&localeFlag, "locale", "l", "", "locale to search in")
	cmd.Flags().StringVarP(&kind, "type", "t", "", "restrict to one content type")
	cmd.Flags().StringVar(&category, "category", "", "restrict products to a category id")
	cmd.Flags().IntVar(&limit, "limit", 0, "overall result limit")
	cmd.Flags().BoolVar(&inline, "inline", false, "use the as-you-type variant")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var localeFlag string
	cmd := &cobra.Command{
		Use:   "get <type> <slug>",
		Short: "Fetch one object by slug, with default-locale fallback",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := cms.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("unknown type %q", args[0])
			}
			code, err := parseLocaleFlag(localeFlag)
			if err != nil {
				return err
			}
			gateway, err := opts.gateway(cmd.Context())
			if err != nil {
				return err
			}
			obj, err := gateway.FindBySlug(cmd.Context(), kind, args[1], code)
			if err != nil {
				return err
			}
			if obj == nil {
				return fmt.Errorf("%s %q: %w", kind, args[1], errAbsent)
			}
			return printJSON(cmd.OutOrStdout(), obj)
		},
	}
	cmd.Flags().StringVarP(&localeFlag, "locale", "l", "", "preferred locale")
	return cmd
}

func newCategoriesCmd(opts *rootOptions) *cobra.Command {
	var localeFlag string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories with product counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := parseLocaleFlag(localeFlag)
			if err != nil {
				return err
			}
			gateway, err := opts.gateway(cmd.Context())
			if err != nil {
				return err
			}
			categories, err := gateway.Categories(cmd.Context(), code)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), categories)
		},
	}
	cmd.Flags().StringVarP(&localeFlag, "locale", "l", "", "locale used for product counts")
	return cmd
}

func newLocalesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locales",
		Short: "List supported locales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, info := range locale.Supported() {
				marker := ""
				if info.Code == locale.Default {
					marker = " (default)"
				}
				if _, err := fmt.Fprintf(w, "%s\t%s%s\n", info.Code, info.Name, marker); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
