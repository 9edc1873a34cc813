package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mercatus/blackboard/internal/config"
	"github.com/mercatus/blackboard/internal/printer"
	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/internal/watch"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

var configPath string

var eventsCmd = &cobra.Command{
	Use:   "events <team-id>",
	Short: "Follow a team's task events",
	Long: `Subscribes to the team's task event channel and prints each event as
it happens. Runs until interrupted. Connects to Redis directly using the
settings from blackboard.yml.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&configPath, "config", "", "path to blackboard.yml (default: $BLACKBOARD_CONFIG, then ./blackboard.yml)")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	teamID := args[0]

	cfg, err := loadEventsConfig()
	if err != nil {
		return printer.Error("Could not load configuration", err.Error(), nil)
	}

	mirror, err := cache.New(&redis.Options{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	}, cfg.Storage.Instance, cfg.Storage.CacheTTL())
	if err != nil {
		return printer.Error("Could not connect to Redis", err.Error(), nil)
	}
	defer mirror.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mirror.Ping(ctx); err != nil {
		return printer.Error(
			"Redis not reachable",
			err.Error(),
			[]string{"Check storage.redis_addr in blackboard.yml"},
		)
	}

	printer.Step("following task events for team %s (ctrl-c to stop)\n", teamID)
	return watch.Follow(ctx, mirror, teamID, printEvent)
}

func printEvent(event *blackboard.Event) {
	printer.Printf("%s  %-18s task %s", event.At.Format("15:04:05"), event.Type, event.TaskID)
	if expert := event.Data["expert_id"]; expert != "" {
		printer.Printf("  expert %s", expert)
	}
	printer.Println()
}

func loadEventsConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	if env := os.Getenv("BLACKBOARD_CONFIG"); env != "" {
		return config.Load(env)
	}
	if _, err := os.Stat("blackboard.yml"); err == nil {
		return config.Load("blackboard.yml")
	}
	return config.Default(), nil
}
