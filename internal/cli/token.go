package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/notify"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/token"
)

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <cart-id>",
		Short: "Print the completion token and link of a cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			signer, err := token.NewSigner(cfg.CompletionSecret)
			if err != nil {
				return err
			}
			links, err := notify.NewCompletionLinks(cfg.PublicBaseURL)
			if err != nil {
				return err
			}

			cartID := args[0]
			tok := signer.Sign(cartID)
			result := map[string]string{
				"cart_id": cartID,
				"token":   tok,
				"url":     links.URL(cartID, tok),
			}
			return rootOpts.write(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintln(w, tok)
				if u := result["url"]; u != "" {
					fmt.Fprintln(w, u)
				}
			})
		},
	}
}
