package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/courier/internal/load/config"
	"github.com/wesleyorama2/courier/internal/load/output"
	"github.com/wesleyorama2/courier/internal/load/shape"
)

func newStagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Show a load shape as a timeline",
		Long: `Print a stage table with each stage's start and end on the cumulative
timeline. Without flags the built-in shape is shown.

  courier stages
  courier stages --stages "30s:10:2,1m:10:2,30s:0:2"
  courier stages -c delivery.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := resolveStages(cmd)
			if err != nil {
				return err
			}
			if err := shape.Validate(stages); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, output.StagesTable(stages))
			fmt.Fprintf(out, "%d stages, total %s\n", len(stages), shape.TotalDuration(stages))
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Read the shape from this configuration file")
	cmd.Flags().String("stages", "", "Stage table 'duration:users:spawnRate[:name],...'")

	return cmd
}

// resolveStages picks --stages, then the config file's shape, then the
// built-in table.
func resolveStages(cmd *cobra.Command) ([]shape.Stage, error) {
	stagesFlag, _ := cmd.Flags().GetString("stages")
	configPath, _ := cmd.Flags().GetString("config")

	switch {
	case stagesFlag != "":
		parsed, err := config.ParseStages(stagesFlag)
		if err != nil {
			return nil, fmt.Errorf("--stages: %w", err)
		}
		tc := &config.TestConfig{Shape: &config.ShapeConfig{Stages: parsed}}
		return tc.StageTable(), nil

	case configPath != "":
		tc, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if !tc.ShapeEnabled() {
			return nil, fmt.Errorf("%s has no load shape", configPath)
		}
		return tc.StageTable(), nil

	default:
		return shape.DefaultStages(), nil
	}
}
