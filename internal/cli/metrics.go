package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/app"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/monitoring"
)

func NewLogMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log-metrics",
		Short: "Log and print cart statistics for today",
		Args:  cobra.NoArgs,
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

			st, err := monitoring.LogMetrics(cmd.Context(), monitoring.NewStats(storage.Store, cfg.StatsCacheTTL, nil), logger)
			if err != nil {
				return err
			}
			return rootOpts.write(cmd.OutOrStdout(), st, func(w io.Writer) {
				fmt.Fprintf(w, "active carts:          %d\n", st.ActiveCarts)
				fmt.Fprintf(w, "finalized today:       %d\n", st.FinalizedToday)
				fmt.Fprintf(w, "pending reminders:     %d\n", st.PendingReminders)
				fmt.Fprintf(w, "sent reminders today:  %d\n", st.SentRemindersToday)
				fmt.Fprintf(w, "failed reminders:      %d\n", st.FailedReminders)
			})
		},
	}
}
