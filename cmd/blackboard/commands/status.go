package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mercatus/blackboard/internal/daemon"
	"github.com/mercatus/blackboard/internal/printer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	Long:  `Queries the daemon's /healthz endpoint and reports store and cache connectivity.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(daemonAddr + "/healthz")
	if err != nil {
		return printer.Error(
			"Daemon not reachable",
			fmt.Sprintf("Could not reach %s: %v", daemonAddr, err),
			[]string{
				"Start the daemon with 'blackboardd'",
				"Point --addr at a running daemon",
			},
		)
	}
	defer resp.Body.Close()

	var health daemon.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return printer.Error("Unexpected daemon response", err.Error(), nil)
	}

	printer.Printf("status: %s\n", printer.Health(health.Status))
	printer.Printf("store:  %s\n", health.Store)
	printer.Printf("cache:  %s\n", health.Cache)
	if health.Error != "" {
		printer.Warning("%s\n", health.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon unhealthy")
	}
	return nil
}
