package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment variables that stand in for flags:
// --spawn-rate can be given as COURIER_SPAWN_RATE.
const EnvPrefix = "COURIER"

// applyEnv fills every flag the user did not pass from its environment
// variable, if set. Flags given on the command line win.
func applyEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil || f.Changed || f.Name == "help" {
			return
		}
		if !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil {
			firstErr = fmt.Errorf("%s_%s: %w", EnvPrefix, envKey(f.Name), err)
		}
	})
	return firstErr
}

func envKey(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
