package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/activity-check/internal/classifier"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "activity-check",
		Short:        "Classify the activity risk shown in an image",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(configFile)
			},
		},
		newClassifyCommand(),
	)
	return root
}

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "classify <label>...",
		Short:   "Print the classification of the given label descriptions",
		Example: `  activity-check classify "Ski" "Snow" "Mountain"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := classifier.ClassifyDescriptions(args)
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(result)
		},
	}
}
