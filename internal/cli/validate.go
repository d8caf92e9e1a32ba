package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/galias/stressline/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>",
		Short: "Check a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := scenario.LoadFile(args[0])
			if err != nil {
				return err
			}
			file.ApplyDefaults()
			if err := file.Validate(); err != nil {
				return err
			}

			sc, err := file.Build()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid: %d stages, %d thresholds, %s, up to %d VUs, target %s\n",
				args[0], len(sc.Options.Stages), len(sc.Options.Thresholds),
				sc.Options.TotalDuration(), sc.Options.MaxTarget(), sc.Target)
			return nil
		},
	}
}
