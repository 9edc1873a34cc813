package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/mercatus/blackboard/internal/printer"
	"github.com/mercatus/blackboard/internal/team"
)

var overviewCmd = &cobra.Command{
	Use:   "overview <organization-id>",
	Short: "Show an organization's teams at a glance",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverview,
}

func init() {
	rootCmd.AddCommand(overviewCmd)
}

func runOverview(cmd *cobra.Command, args []string) error {
	orgID := args[0]

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(daemonAddr + "/overview?org=" + url.QueryEscape(orgID))
	if err != nil {
		return printer.Error(
			"Daemon not reachable",
			fmt.Sprintf("Could not reach %s: %v", daemonAddr, err),
			[]string{"Start the daemon with 'blackboardd'"},
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var overview team.Overview
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		return printer.Error("Unexpected daemon response", err.Error(), nil)
	}

	printer.Printf("Organization %s: %d teams (%d active)\n\n",
		overview.OrganizationID, overview.Teams, overview.ActiveTeams)
	for _, dash := range overview.Dashboards {
		state := "active"
		if !dash.Team.Active {
			state = "inactive"
		}
		printer.Printf("  %-20s %-8s %d experts, %d tasks, utilization %.0f%%\n",
			dash.Team.Name, state, len(dash.Experts), dash.Metrics.TotalTasks, dash.Metrics.Utilization*100)
	}
	return nil
}
