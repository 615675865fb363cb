package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/courier/internal/load/delivery"
	"github.com/wesleyorama2/courier/internal/load/output"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the simulated user actions with their weights",
		Long: `Print every action a simulated user can pick, its relative weight, the
resulting selection probability and whether it needs a logged-in user.
Auth-gated actions picked by an anonymous user are skipped, not retried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")

			opts := delivery.Options{Prefix: prefix}
			if cmd.Flags().Changed("auth-probability") {
				p, _ := cmd.Flags().GetFloat64("auth-probability")
				if p < 0 || p > 1 {
					return fmt.Errorf("--auth-probability must be between 0 and 1, got %v", p)
				}
				opts.AuthProbability = &p
			}

			c, err := delivery.New(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, output.CatalogTable(c))
			fmt.Fprintf(out, "%d actions, total weight %d\n", len(c.Actions()), c.TotalWeight())
			return nil
		},
	}

	cmd.Flags().String("prefix", "", "API path prefix (default \"/api\")")
	cmd.Flags().Float64("auth-probability", 0, "Probability that a new user logs in first (default 0.3)")

	return cmd
}
