package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/app"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
)

type sweepResult struct {
	Scanned      int      `json:"scanned"`
	Cancelled    int      `json:"cancelled"`
	Due          []string `json:"due"`
	Redispatched int      `json:"redispatched"`
	InFlight     int      `json:"in_flight"`
	DryRun       bool     `json:"dry_run"`
}

// NewSweepCommand runs one reconciliation pass. Redispatching needs the
// broker; without RABBITMQ_URL the pass only cancels reminders of closed
// carts and lists the due ones.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep",
		Args:  cobra.NoArgs,
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

			var (
				report reminder.SweepReport
				dryRun = cfg.RabbitURL == ""
			)
			if dryRun {
				report.SweepResult, err = a.Engine.ProcessDueReminders(cmd.Context())
			} else {
				report, err = a.Sweeper.RunOnce(cmd.Context())
			}
			if err != nil {
				return err
			}

			result := sweepResult{
				Scanned:      report.Scanned,
				Cancelled:    report.Cancelled,
				Due:          make([]string, 0, len(report.Due)),
				Redispatched: report.Redispatched,
				InFlight:     report.InFlight,
				DryRun:       dryRun,
			}
			for _, r := range report.Due {
				result.Due = append(result.Due, r.ID)
			}

			return rootOpts.write(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "scanned %d, cancelled %d, due %d\n", result.Scanned, result.Cancelled, len(result.Due))
				if dryRun {
					fmt.Fprintln(w, "no broker configured, nothing redispatched")
					return
				}
				fmt.Fprintf(w, "redispatched %d, in flight %d\n", result.Redispatched, result.InFlight)
			})
		},
	}
}
