package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/app"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
)

type cartView struct {
	cart.Cart
	Total     string          `json:"total"`
	Reminders []cart.Reminder `json:"reminders"`
}

// NewCartCommand shows one cart with its lines and reminder schedule.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cart <cart-id>",
		Short: "Show a cart with its items and reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Carts.GetCart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reminders, err := a.Storage.Store.ListReminders(cmd.Context(), c.ID)
			if err != nil {
				return err
			}

			view := cartView{Cart: c, Total: c.Total().StringFixed(2), Reminders: reminders}
			return rootOpts.write(cmd.OutOrStdout(), view, func(w io.Writer) {
				fmt.Fprintf(w, "cart %s (%s) %s\n", c.ID, c.CustomerEmail, c.Status)
				for _, it := range c.Items {
					fmt.Fprintf(w, "  %s x%d @ %s\n", it.ProductID, it.Quantity, it.Price.StringFixed(2))
				}
				fmt.Fprintf(w, "  total %s\n", view.Total)
				for _, r := range reminders {
					fmt.Fprintf(w, "  reminder %d %s at %s\n", r.Ordinal, r.Status, r.ScheduledAt.Format("2006-01-02 15:04:05Z07:00"))
				}
			})
		},
	}
}
