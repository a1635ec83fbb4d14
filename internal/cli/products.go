package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/app"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/clock"
)

// NewProductsCommand manages the local products table used when no external
// catalog is configured.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the local product price list",
	}
	cmd.AddCommand(newProductsAddCommand(rootOpts))
	cmd.AddCommand(newProductsGetCommand(rootOpts))
	return cmd
}

func newProductsAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <name> <price>",
		Short: "Create or update a product",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[2], err)
			}
			if price.IsNegative() {
				return fmt.Errorf("invalid price %q: must not be negative", args[2])
			}

			cfg, logger, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			storage, err := app.OpenStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			p := catalog.Product{ID: args[0], Name: args[1], Price: price}
			if err := storage.Products.UpsertProduct(cmd.Context(), p, clock.Real{}.Now()); err != nil {
				return err
			}
			return writeProduct(rootOpts, cmd.OutOrStdout(), p)
		},
	}
}

func newProductsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			storage, err := app.OpenStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			p, err := storage.Products.Product(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeProduct(rootOpts, cmd.OutOrStdout(), p)
		},
	}
}

func writeProduct(rootOpts *RootOptions, w io.Writer, p catalog.Product) error {
	return rootOpts.write(w, p, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2))
	})
}
