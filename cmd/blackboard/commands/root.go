package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	// daemonAddr is the base URL of a running blackboardd instance.
	daemonAddr string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blackboard",
	Short: "BlackBoard - multi-agent task orchestration",
	Long: `BlackBoard coordinates teams of specialized expert agents around a
shared task board: tasks are created, matched to experts, worked through a
strict state machine, and audited end to end.

The CLI talks to a running blackboardd daemon over HTTP.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:8080", "base URL of the blackboardd daemon")
}
