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

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <team-id>",
	Short: "Show a team's operational dashboard",
	Long:  `Fetches the team dashboard from the daemon: expert roster, workload metrics, and ready tasks.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	teamID := args[0]

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(daemonAddr + "/dashboard?team=" + url.QueryEscape(teamID))
	if err != nil {
		return printer.Error(
			"Daemon not reachable",
			fmt.Sprintf("Could not reach %s: %v", daemonAddr, err),
			[]string{"Start the daemon with 'blackboardd'"},
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return printer.Error(
			"Team not found",
			fmt.Sprintf("No team with ID %s", teamID),
			nil,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var dash team.Dashboard
	if err := json.NewDecoder(resp.Body).Decode(&dash); err != nil {
		return printer.Error("Unexpected daemon response", err.Error(), nil)
	}

	printer.Printf("Team %s (%s)\n", dash.Team.Name, dash.Team.ID)
	if !dash.Team.Active {
		printer.Warning("team is deactivated\n")
	}
	printer.Println()

	printer.Println("Experts:")
	for _, e := range dash.Experts {
		printer.Printf("  %-12s %-10s %s  %d/%d tasks\n",
			e.Name, e.Role, printer.ExpertStatus(e.Status), e.CurrentTasks, e.MaxConcurrent)
	}
	printer.Println()

	printer.Println("Tasks:")
	for status, count := range dash.Metrics.ByStatus {
		printer.Printf("  %-12s %d\n", printer.TaskStatus(status), count)
	}
	printer.Printf("  ready to assign: %d\n", dash.Ready)
	printer.Printf("  utilization: %.0f%%\n", dash.Metrics.Utilization*100)
	if dash.Metrics.AvgActualMins > 0 {
		printer.Printf("  avg completion: %.0f mins\n", dash.Metrics.AvgActualMins)
	}
	return nil
}
