package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newOptionsCmd() *cobra.Command {
	flags := &scenarioFlags{}
	var format string

	cmd := &cobra.Command{
		Use:   "options [scenario-file]",
		Short: "Print the resolved scenario options",
		Long: `Print the scenario with every default filled in, in the same format a
scenario file uses. Without a file the built-in stress scenario is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := flags.loadScenarioFile(args)
			if err != nil {
				return err
			}
			if err := file.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "yaml", "yml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(file); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(file)
			default:
				return fmt.Errorf("unsupported format %q (expected yaml or json)", format)
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}
