// Package main is the entry point for the playout core.
//
// The playout core turns the on-air state of a rundown playlist into the
// device timeline, publishes it over MQTT and exposes the operator actions
// over HTTP. Subcommands:
//
//	playout serve      run the engine and the HTTP API
//	playout generate   build one timeline from a snapshot file
//	playout migrate    apply, roll back or list database migrations
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither --config nor PLAYOUT_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "playout",
		Short:         "Playout core: timeline generation and operator control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $PLAYOUT_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newGenerateCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "playout %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// getConfigPath resolves the configuration file path from the flag, then
// PLAYOUT_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("PLAYOUT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newBlueprint picks the show style blueprint named in the config.
func newBlueprint(cfg config.ShowStyleConfig) blueprint.Blueprint {
	if cfg.Blueprint == "noop" {
		return blueprint.Noop{}
	}
	return &blueprint.Standard{AudioLayers: cfg.AudioLayers}
}

// baselineObjects converts the configured studio baseline into timeline objects.
func baselineObjects(objs []config.BaselineObject) []*timeline.Object {
	out := make([]*timeline.Object, 0, len(objs))
	for _, o := range objs {
		out = append(out, &timeline.Object{
			ID:      o.ID,
			Layer:   o.Layer,
			Content: o.Content,
		})
	}
	return out
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
