package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrThresholdsFailed is returned by `courier run` when the test finished
// but at least one threshold did not pass.
var ErrThresholdsFailed = errors.New("thresholds failed")

// NewRootCmd builds the courier command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "courier",
		Short:   "Load generator for the delivery API",
		Version: version,
		Long: `Courier simulates shoppers against a delivery API: each user logs in with
some probability, then loops over a weighted catalog of browse, search,
order and signup actions with a pause between them.

The user count is either held constant for a duration or driven by a
staged load shape (ramp up, hold, ramp down).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newStagesCmd())

	return root
}

// Execute runs the root command and reports any error on stderr. This is
// called by main.main().
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, ErrThresholdsFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
