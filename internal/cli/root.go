// Package cli implements cartctl, the operator command line for the cart
// service.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	loadConfig func() (config.Config, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates cartctl with configuration read from the environment.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load)
}

func newRootCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	opts := &RootOptions{loadConfig: loadConfig}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Operate the cart reminder service",
		Long:  "Operator commands for the cart service: migrations, reminder sweeps, completion tokens and metrics.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewLogMetricsCommand(opts))
	cmd.AddCommand(NewProductsCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))

	return cmd
}

// setup loads configuration and a logger writing to the command's stderr.
func (o *RootOptions) setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if o.Verbose {
		level = "debug"
	}
	logger := logging.New(logging.Options{
		Service: "cartctl",
		Env:     cfg.Env,
		Level:   level,
		Format:  "text",
		Writer:  cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

// write prints v as indented JSON, or as text through render.
func (o *RootOptions) write(w io.Writer, v any, render func(w io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render(w)
	return nil
}
