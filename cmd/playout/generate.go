package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/generator"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// snapshotFile is the on-disk form of a playout snapshot. YAML and JSON are
// both accepted; keys follow the JSON field names of the rundown types.
type snapshotFile struct {
	PlaylistID      string                `json:"playlistId"`
	Now             int64                 `json:"now"`
	Hold            rundown.HoldState     `json:"hold"`
	Baseline        []*timeline.Object    `json:"baseline"`
	Previous        *rundown.PartInstance `json:"previous"`
	Current         *rundown.PartInstance `json:"current"`
	Next            *rundown.PartInstance `json:"next"`
	Parts           []*rundown.Part       `json:"parts"`
	PersistentState json.RawMessage       `json:"persistentState"`
}

// generateResult is what generate prints.
type generateResult struct {
	Timeline        *timeline.Timeline `json:"timeline"`
	RecomputeAt     int64              `json:"recomputeAt,omitempty"`
	PersistentState json.RawMessage    `json:"persistentState,omitempty"`
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "generate <snapshot.yaml>",
		Short: "Build the timeline for a snapshot file and print it as JSON",
		Long: "Reads a playout snapshot (previous, current and next part instances, " +
			"the playlist parts and the clock) and prints the generated timeline. " +
			"Studio baseline, show style and simulation window come from the config file when one is present.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault(*configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading snapshot: %w", err)
			}
			return runGenerate(cmd.Context(), cfg, data, raw, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "skip the blueprint hook")
	return cmd
}

// loadConfigOrDefault loads the config file, falling back to the built-in
// defaults when no path was given and the default file does not exist.
func loadConfigOrDefault(flag string) (*config.Config, error) {
	path := getConfigPath(flag)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if flag == "" && os.Getenv("PLAYOUT_CONFIG") == "" && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("loading configuration: %w", err)
}

func runGenerate(ctx context.Context, cfg *config.Config, data []byte, raw bool, out io.Writer) error {
	snap, err := parseSnapshot(data)
	if err != nil {
		return err
	}
	if snap.Baseline == nil {
		snap.Baseline = baselineObjects(cfg.Studio.Baseline)
	}

	opts := generator.Options{SimulationWindow: cfg.Playout.SimulationWindow}
	var bp blueprint.Blueprint
	if !raw {
		bp = newBlueprint(cfg.ShowStyle)
	}
	gc := blueprint.GenerateContext{
		Studio:     blueprint.Studio{ID: cfg.Studio.ID, Name: cfg.Studio.Name},
		ShowStyle:  blueprint.ShowStyle{ID: cfg.ShowStyle.ID, Name: cfg.ShowStyle.Name, DefaultAudioLevel: cfg.ShowStyle.DefaultAudioLevel},
		PlaylistID: snap.PlaylistID,
		Now:        snap.Now,
	}

	res, err := generator.Generate(ctx, snap, bp, gc, opts)
	if err != nil {
		return fmt.Errorf("generating timeline: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(generateResult{
		Timeline:        res.Timeline,
		RecomputeAt:     res.RecomputeAt,
		PersistentState: res.PersistentState,
	})
}

// parseSnapshot decodes a YAML or JSON snapshot. YAML is decoded into plain
// values first and re-encoded as JSON so the custom JSON decoding of the
// timeline types applies to both formats.
func parseSnapshot(data []byte) (*rundown.PlayoutSnapshot, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parsing snapshot: empty document")
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	var f snapshotFile
	if err := json.Unmarshal(asJSON, &f); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if f.Now <= 0 {
		return nil, fmt.Errorf("decoding snapshot: now must be a positive epoch time in milliseconds")
	}
	return &rundown.PlayoutSnapshot{
		PlaylistID:      f.PlaylistID,
		Now:             f.Now,
		Hold:            f.Hold,
		Baseline:        f.Baseline,
		Previous:        f.Previous,
		Current:         f.Current,
		Next:            f.Next,
		Parts:           f.Parts,
		PersistentState: f.PersistentState,
	}, nil
}
