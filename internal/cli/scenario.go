package cli

import (
	"github.com/spf13/cobra"

	"github.com/galias/stressline/internal/scenario"
)

// scenarioFlags are shared by commands that resolve a scenario.
type scenarioFlags struct {
	url     string
	resolve string
}

func (f *scenarioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "fixed target URL (default: read APP_URL)")
	cmd.Flags().StringVar(&f.resolve, "resolve", "", "when to read APP_URL: iteration or once")
}

// loadScenarioFile returns the file named by args, or the built-in scenario,
// with defaults and flag overrides applied.
func (f *scenarioFlags) loadScenarioFile(args []string) (*scenario.File, error) {
	file := &scenario.File{}
	if len(args) > 0 {
		loaded, err := scenario.LoadFile(args[0])
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	if f.url != "" {
		file.Target.URL = f.url
	}
	if f.resolve != "" {
		file.Target.Resolve = f.resolve
	}
	file.ApplyDefaults()
	return file, nil
}
