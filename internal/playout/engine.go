package playout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/generator"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/mqtt"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// Logger defines the logging interface used by the Engine.
// This allows the engine to work with any logger that implements these methods.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the interface for publishing timelines to the device layer.
type MQTTClient interface {
	// Publish sends a message to the specified MQTT topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Events broadcast on the WSHub.
const (
	EventTimelineGenerated = "timeline.generated"
	EventTimelineFailed    = "timeline.failed"
	EventTake              = "playout.take"
)

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// MetricsWriter records one data point per regeneration.
type MetricsWriter interface {
	WriteGenerationMetric(playlistID string, generation int64, objects int, took time.Duration, autoNext bool)
}

// Config tunes the engine.
type Config struct {
	// SimulationWindow overrides the resolver default when positive.
	SimulationWindow int64
	// MinimumTakeSpan is the minimum gap between two takes.
	MinimumTakeSpan int64
	// PublishQoS is used for timeline publishes.
	PublishQoS byte
	// Baseline objects are always on air, active or not.
	Baseline []*timeline.Object
}

// Default engine settings.
const (
	DefaultMinimumTakeSpan int64 = 1000
)

// EngineDeps collects the collaborators of an Engine. Repo is required; every
// other field may be left zero.
type EngineDeps struct {
	Repo      Repository
	Locks     *LockManager
	Blueprint blueprint.Blueprint
	Studio    blueprint.Studio
	ShowStyle blueprint.ShowStyle
	MQTT      MQTTClient
	Topics    mqtt.Topics
	Hub       WSHub
	Metrics   MetricsWriter
	Clock     func() int64
	Config    Config
	Logger    Logger
}

// Engine drives playlists on air.
//
// Every public operation takes the playlist lock, mutates the stored state
// and regenerates the timeline before the lock is released. Publishing and
// timer scheduling run as deferred lease callbacks, serialised per playlist
// so an older generation never lands after a newer one.
//
// Thread Safety: all methods are safe for concurrent use.
type Engine struct {
	repo      Repository
	locks     *LockManager
	bp        blueprint.Blueprint
	studio    blueprint.Studio
	showStyle blueprint.ShowStyle
	mqtt      MQTTClient
	topics    mqtt.Topics
	hub       WSHub
	metrics   MetricsWriter
	clock     func() int64
	cfg       Config
	logger    Logger

	timers *slotTimer

	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	published map[string]*publication
}

// publication tracks the newest timeline handed out for one playlist.
type publication struct {
	mu         sync.Mutex
	generation int64
}

// NewEngine creates a playout engine.
func NewEngine(deps EngineDeps) *Engine {
	e := &Engine{
		repo:      deps.Repo,
		locks:     deps.Locks,
		bp:        deps.Blueprint,
		studio:    deps.Studio,
		showStyle: deps.ShowStyle,
		mqtt:      deps.MQTT,
		topics:    deps.Topics,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		cfg:       deps.Config,
		logger:    deps.Logger,
		published: make(map[string]*publication),
	}
	if e.locks == nil {
		e.locks = NewLockManager()
	}
	if e.bp == nil {
		e.bp = blueprint.Noop{}
	}
	if e.clock == nil {
		e.clock = func() int64 { return time.Now().UnixMilli() }
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.cfg.MinimumTakeSpan < 0 {
		e.cfg.MinimumTakeSpan = 0
	}
	e.timers = newSlotTimer(e.clock)
	return e
}

// Close cancels pending timers and waits for in-flight timer work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.timers.Stop()
	e.wg.Wait()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) publication(playlistID string) *publication {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.published[playlistID]
	if !ok {
		p = &publication{}
		e.published[playlistID] = p
	}
	return p
}

// session is the state loaded for one locked operation.
type session struct {
	lease *Lease
	pl    *Playlist
	now   int64

	parts    []*rundown.Part
	previous *rundown.PartInstance
	current  *rundown.PartInstance
	next     *rundown.PartInstance

	// staged part instances are written by regenerate once the timeline
	// built, so a failed generation leaves storage as it was.
	staged []*rundown.PartInstance
}

func (s *session) stage(pi *rundown.PartInstance) {
	for _, p := range s.staged {
		if p == pi {
			return
		}
	}
	s.staged = append(s.staged, pi)
}

// withPlaylist runs fn under the playlist lock with the stored state loaded.
func (e *Engine) withPlaylist(ctx context.Context, playlistID string, p Priority, fn func(s *session) error) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	lease, err := e.locks.Acquire(ctx, playlistID, p)
	if err != nil {
		return fmt.Errorf("acquiring playlist lock: %w", err)
	}
	defer lease.Release()

	s, err := e.load(ctx, lease, playlistID)
	if err != nil {
		return err
	}
	return fn(s)
}

func (e *Engine) load(ctx context.Context, lease *Lease, playlistID string) (*session, error) {
	pl, err := e.repo.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	parts, err := e.repo.ListParts(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	s := &session{lease: lease, pl: pl, now: e.clock(), parts: parts}

	if s.previous, err = e.instance(ctx, pl.PreviousPartInstanceID); err != nil {
		return nil, err
	}
	if s.current, err = e.instance(ctx, pl.CurrentPartInstanceID); err != nil {
		return nil, err
	}
	if s.next, err = e.instance(ctx, pl.NextPartInstanceID); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) instance(ctx context.Context, id string) (*rundown.PartInstance, error) {
	if id == "" {
		return nil, nil
	}
	pi, err := e.repo.GetPartInstance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading part instance %s: %w", id, err)
	}
	return pi, nil
}

func (e *Engine) snapshot(s *session) *rundown.PlayoutSnapshot {
	snap := &rundown.PlayoutSnapshot{
		PlaylistID:      s.pl.ID,
		Now:             s.now,
		Hold:            s.pl.Hold,
		Baseline:        e.cfg.Baseline,
		Parts:           s.parts,
		PersistentState: s.pl.PersistentState,
	}
	if s.pl.Active {
		snap.Previous, snap.Current, snap.Next = s.previous, s.current, s.next
	}
	return snap
}

func (e *Engine) options() generator.Options {
	return generator.Options{SimulationWindow: e.cfg.SimulationWindow}
}

// regenerate builds, stores and publishes a new timeline for the session.
// On failure nothing staged is written and the previously published
// timeline stays in force.
func (e *Engine) regenerate(ctx context.Context, s *session) error {
	started := time.Now()
	gc := blueprint.GenerateContext{
		Studio:     e.studio,
		ShowStyle:  e.showStyle,
		PlaylistID: s.pl.ID,
		Now:        s.now,
	}

	out, err := generator.Generate(ctx, e.snapshot(s), e.bp, gc, e.options())
	if err != nil {
		e.logger.Error("timeline generation failed",
			"playlist_id", s.pl.ID,
			"error", err,
		)
		if e.hub != nil {
			playlistID := s.pl.ID
			msg := err.Error()
			s.lease.Defer(func() {
				e.hub.Broadcast(EventTimelineFailed, map[string]any{
					"playlist_id": playlistID,
					"error":       msg,
				})
			})
		}
		return fmt.Errorf("generating timeline: %w", err)
	}

	for _, pi := range s.staged {
		if err := e.repo.SavePartInstance(ctx, pi); err != nil {
			return err
		}
	}
	s.staged = nil

	tl := out.Timeline
	tl.Generation = s.pl.Generation + 1
	if err := e.repo.SaveTimeline(ctx, tl); err != nil {
		return err
	}
	s.pl.Generation = tl.Generation
	s.pl.PersistentState = out.PersistentState
	if err := e.repo.SavePlaylist(ctx, s.pl); err != nil {
		return err
	}

	took := time.Since(started)
	e.logger.Debug("timeline generated",
		"playlist_id", s.pl.ID,
		"generation", tl.Generation,
		"objects", tl.Count(),
		"duration_ms", took.Milliseconds(),
	)

	studioID := s.pl.StudioID
	recomputeAt := out.RecomputeAt
	s.lease.Defer(func() {
		e.release(studioID, tl, recomputeAt, took)
	})
	return nil
}

// release publishes and schedules tl unless a newer generation of the same
// playlist already went out.
func (e *Engine) release(studioID string, tl *timeline.Timeline, recomputeAt int64, took time.Duration) {
	p := e.publication(tl.PlaylistID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if tl.Generation <= p.generation {
		e.logger.Debug("stale timeline not published",
			"playlist_id", tl.PlaylistID,
			"generation", tl.Generation,
			"published", p.generation,
		)
		return
	}
	p.generation = tl.Generation
	e.publish(studioID, tl, took)
	e.schedule(tl, recomputeAt)
}

func (e *Engine) publish(studioID string, tl *timeline.Timeline, took time.Duration) {
	if e.mqtt != nil {
		payload, err := json.Marshal(tl)
		if err != nil {
			e.logger.Error("failed to marshal timeline", "playlist_id", tl.PlaylistID, "error", err)
		} else if pubErr := e.mqtt.Publish(e.topics.Timeline(studioID), payload, e.cfg.PublishQoS, true); pubErr != nil {
			e.logger.Error("failed to publish timeline",
				"playlist_id", tl.PlaylistID,
				"generation", tl.Generation,
				"error", pubErr,
			)
		}
	}

	if e.hub != nil {
		e.hub.Broadcast(EventTimelineGenerated, map[string]any{
			"playlist_id": tl.PlaylistID,
			"generation":  tl.Generation,
			"timeline":    tl,
		})
	}

	if e.metrics != nil {
		e.metrics.WriteGenerationMetric(tl.PlaylistID, tl.Generation, tl.Count(), took, tl.AutoNext != nil)
	}
}

func autoNextKey(playlistID string) string  { return "autonext:" + playlistID }
func recomputeKey(playlistID string) string { return "recompute:" + playlistID }

// schedule follows the latest timeline: its autoNext replaces or cancels the
// pending automatic take, and an open simulation window books a recompute.
func (e *Engine) schedule(tl *timeline.Timeline, recomputeAt int64) {
	playlistID, generation := tl.PlaylistID, tl.Generation

	if tl.AutoNext != nil {
		e.timers.Schedule(autoNextKey(playlistID), tl.AutoNext.EpochTimeToTakeNext, func() {
			e.spawn(func() { e.autoTake(playlistID, generation) })
		})
	} else {
		e.timers.Cancel(autoNextKey(playlistID))
	}

	if recomputeAt > 0 {
		e.timers.Schedule(recomputeKey(playlistID), recomputeAt, func() {
			e.spawn(func() {
				if err := e.Regenerate(context.Background(), playlistID); err != nil {
					e.logger.Warn("recompute failed", "playlist_id", playlistID, "error", err)
				}
			})
		})
	} else {
		e.timers.Cancel(recomputeKey(playlistID))
	}
}

func (e *Engine) spawn(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// autoTake runs a scheduled take unless a newer timeline replaced the one it
// was scheduled for.
func (e *Engine) autoTake(playlistID string, generation int64) {
	err := e.withPlaylist(context.Background(), playlistID, PriorityPlayout, func(s *session) error {
		if s.pl.Generation != generation {
			e.logger.Debug("auto take dropped", "playlist_id", playlistID, "scheduled_generation", generation, "generation", s.pl.Generation)
			return nil
		}
		return e.take(context.Background(), s, true)
	})
	if err != nil {
		e.logger.Error("auto take failed", "playlist_id", playlistID, "error", err)
	}
}

// PendingAutoNext returns the instant of the pending automatic take.
func (e *Engine) PendingAutoNext(playlistID string) (int64, bool) {
	return e.timers.Pending(autoNextKey(playlistID))
}
