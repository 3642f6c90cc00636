package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/generator"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// ─── Helpers ────────────────────────────────────────────────────

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// writeConfig writes a config with MQTT and InfluxDB disabled.
func writeConfig(t *testing.T, dbPath string, port int) string {
	t.Helper()
	content := `
studio:
  id: studio-test
  baseline:
    - id: studio_lights
      layer: lights

show_style:
  id: news
  blueprint: standard
  audio_layers: [audio_host]

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: ` + strconv.Itoa(port) + `
  timeouts:
    read: 5
    write: 5
    idle: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const testSnapshot = `
playlistId: pl-1
now: 10500
current:
  id: pi-1
  playlistId: pl-1
  part:
    id: p1
    rundownId: rd
    segmentId: seg
    rank: 1
    pieces:
      - id: cam1
        layer: camera
        start: 0
        lifespan: WITHIN_PART
  timings:
    take: 10000
parts:
  - id: p1
    rundownId: rd
    segmentId: seg
    rank: 1
    pieces:
      - id: cam1
        layer: camera
        start: 0
        lifespan: WITHIN_PART
`

// ─── Commands ───────────────────────────────────────────────────

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "playout" {
		t.Errorf("Use = %q, want playout", cmd.Use)
	}
	subs := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{"version", "serve", "generate", "migrate"} {
		if !subs[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "playout "+version) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := newMigrateCmd(new(string))
	subs := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subs[sub.Use] = true
	}
	for _, name := range []string{"up", "down", "status"} {
		if !subs[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestGenerateCmd_RequiresSnapshot(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"generate"})

	if err := root.Execute(); err == nil {
		t.Error("expected error when the snapshot argument is missing")
	}
}

// ─── Config Path ────────────────────────────────────────────────

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"default", "", "", defaultConfigPath},
		{"env override", "", "/custom/env.yaml", "/custom/env.yaml"},
		{"flag wins", "/custom/flag.yaml", "/custom/env.yaml", "/custom/flag.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PLAYOUT_CONFIG", tt.env)
			if got := getConfigPath(tt.flag); got != tt.want {
				t.Errorf("getConfigPath(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	t.Setenv("PLAYOUT_CONFIG", "")

	// No flag and no file in the working directory: built-in defaults.
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	cfg, err := loadConfigOrDefault("")
	if err != nil {
		t.Fatalf("loadConfigOrDefault: %v", err)
	}
	if cfg.Studio.ID != config.Default().Studio.ID {
		t.Errorf("Studio.ID = %q, want default", cfg.Studio.ID)
	}

	// An explicit path that does not exist is an error.
	if _, err := loadConfigOrDefault("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

// ─── Wiring Helpers ─────────────────────────────────────────────

func TestNewBlueprint(t *testing.T) {
	if _, ok := newBlueprint(config.ShowStyleConfig{Blueprint: "noop"}).(blueprint.Noop); !ok {
		t.Error("noop blueprint not selected")
	}
	bp, ok := newBlueprint(config.ShowStyleConfig{Blueprint: "standard", AudioLayers: []string{"a"}}).(*blueprint.Standard)
	if !ok {
		t.Fatal("standard blueprint not selected")
	}
	if len(bp.AudioLayers) != 1 || bp.AudioLayers[0] != "a" {
		t.Errorf("AudioLayers = %v", bp.AudioLayers)
	}
	if _, ok := newBlueprint(config.ShowStyleConfig{}).(*blueprint.Standard); !ok {
		t.Error("empty blueprint name should select standard")
	}
}

func TestBaselineObjects(t *testing.T) {
	objs := baselineObjects([]config.BaselineObject{
		{ID: "lights", Layer: "dmx", Content: map[string]any{"scene": "studio"}},
		{ID: "mixer", Layer: "atem"},
	})
	if len(objs) != 2 {
		t.Fatalf("len = %d, want 2", len(objs))
	}
	if objs[0].ID != "lights" || objs[0].Layer != "dmx" || objs[0].Content["scene"] != "studio" {
		t.Errorf("objs[0] = %+v", objs[0])
	}
	if !objs[1].Enable.IsZero() {
		t.Error("baseline enable should be left to the builder")
	}
}

// ─── Generate ───────────────────────────────────────────────────

func TestRunGenerate(t *testing.T) {
	cfg := config.Default()
	cfg.Studio.Baseline = []config.BaselineObject{{ID: "studio_lights", Layer: "lights"}}

	var buf bytes.Buffer
	if err := runGenerate(context.Background(), cfg, []byte(testSnapshot), false, &buf); err != nil {
		t.Fatalf("runGenerate: %v", err)
	}

	var got struct {
		Timeline        *timeline.Timeline `json:"timeline"`
		RecomputeAt     int64              `json:"recomputeAt"`
		PersistentState json.RawMessage    `json:"persistentState"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, buf.String())
	}
	if got.Timeline.PlaylistID != "pl-1" {
		t.Errorf("PlaylistID = %q, want pl-1", got.Timeline.PlaylistID)
	}
	for _, id := range []string{generator.BaselineGroupID, "studio_lights", generator.PartGroupID("pi-1")} {
		if got.Timeline.Find(id) == nil {
			t.Errorf("object %q missing from timeline", id)
		}
	}
	// Pieces are simulated for the window after the take.
	if want := int64(10_000) + cfg.Playout.SimulationWindow; got.RecomputeAt != want {
		t.Errorf("RecomputeAt = %d, want %d", got.RecomputeAt, want)
	}
	if len(got.PersistentState) == 0 {
		t.Error("standard blueprint should return persistent state")
	}
}

func TestRunGenerate_Raw(t *testing.T) {
	var buf bytes.Buffer
	if err := runGenerate(context.Background(), config.Default(), []byte(testSnapshot), true, &buf); err != nil {
		t.Fatalf("runGenerate: %v", err)
	}
	if strings.Contains(buf.String(), "partsPlayed") {
		t.Error("raw output should not carry blueprint state")
	}
}

func TestParseSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"invalid yaml", "now: [1, 2"},
		{"missing now", "playlistId: pl-1"},
		{"wrong type", "now: 10\ncurrent: 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseSnapshot([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseSnapshot_JSON(t *testing.T) {
	snap, err := parseSnapshot([]byte(`{"playlistId":"pl-9","now":42,"hold":"pending"}`))
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	if snap.PlaylistID != "pl-9" || snap.Now != 42 || snap.Hold != "pending" {
		t.Errorf("snapshot = %+v", snap)
	}
}

// ─── Migrate ────────────────────────────────────────────────────

func TestMigrateCmd_UpStatusDown(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "playout.db"), freePort(t))

	exec := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var buf bytes.Buffer
		root.SetOut(&buf)
		root.SetErr(&buf)
		root.SetArgs(append([]string{"--config", cfgPath}, args...))
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v\n%s", args, err, buf.String())
		}
		return buf.String()
	}

	if out := exec("migrate", "up"); !strings.Contains(out, "applied") {
		t.Errorf("migrate up output = %q", out)
	}
	if out := exec("migrate", "up"); !strings.Contains(out, "no pending migrations") {
		t.Errorf("second migrate up output = %q", out)
	}
	if out := exec("migrate", "status"); strings.Contains(out, "pending") {
		t.Errorf("status after up lists pending migrations: %q", out)
	}
	if out := exec("migrate", "down"); !strings.Contains(out, "rolled back") {
		t.Errorf("migrate down output = %q", out)
	}
	if out := exec("migrate", "status"); !strings.Contains(out, "pending") {
		t.Errorf("status after down should list a pending migration: %q", out)
	}
}

// ─── Serve ──────────────────────────────────────────────────────

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	cfgPath := writeConfig(t, "", freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, cfgPath); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_StartupAndShutdown starts the server without MQTT or InfluxDB,
// checks the health endpoint and shuts down on cancellation.
func TestRun_StartupAndShutdown(t *testing.T) {
	port := freePort(t)
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "playout.db"), port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfgPath) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server did not start listening on %s: %v", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}
