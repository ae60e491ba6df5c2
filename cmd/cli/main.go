package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	flagURL    string
	flagToken  string
	flagJSON   bool
	flagOutput string
	flagDebug  bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pentestctl",
		Short:         "CLI for the web pentest backend",
		Long:          "A command-line interface for starting, following, cancelling and reporting on web pentest runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "API server URL (env: WEB_PENTEST_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "API token (env: WEB_PENTEST_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON (same as --output json)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", outputTable, "Output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug output")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pentestctl %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newTestsCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
