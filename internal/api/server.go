package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tv2/tv-automation-server-core-sub000/internal/audit"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/database"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/logging"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/mqtt"
	"github.com/tv2/tv-automation-server-core-sub000/internal/playout"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the playout surface the API drives. *playout.Engine implements it.
type Engine interface {
	Activate(ctx context.Context, playlistID string, rehearsal bool) error
	Deactivate(ctx context.Context, playlistID string) error
	SetNext(ctx context.Context, playlistID, partID string) error
	Take(ctx context.Context, playlistID string) error
	ToggleHold(ctx context.Context, playlistID string) error
	InsertAdLib(ctx context.Context, playlistID string, piece *rundown.Piece) (*rundown.PieceInstance, error)
	StopPiecesOnLayers(ctx context.Context, playlistID string, layers []string) (int, error)
	OnPlaybackConfirmed(ctx context.Context, playlistID string, confirmations []playout.PlaybackConfirmation) (int, error)
	ApplyIngest(ctx context.Context, pl playout.Playlist, parts []*rundown.Part) error
	Regenerate(ctx context.Context, playlistID string) error

	Timeline(ctx context.Context, playlistID string) (*timeline.Timeline, error)
	Playlist(ctx context.Context, playlistID string) (*playout.Playlist, error)
	Playlists(ctx context.Context) ([]playout.Playlist, error)
	Parts(ctx context.Context, playlistID string) ([]*rundown.Part, error)
	PendingAutoNext(playlistID string) (int64, bool)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Engine      Engine
	AuditRepo   audit.Repository // optional: operator actions are not recorded without it
	DB          *database.DB     // optional: pool stats in /metrics
	MQTT        *mqtt.Client     // optional: connection state in /metrics
	ExternalHub *Hub             // If set, the server uses this hub instead of creating its own
	StudioID    string
	Version     string
}

// Server is the HTTP API server of the playout core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	engine      Engine
	auditRepo   audit.Repository
	auditCh     chan *audit.AuditLog
	db          *database.DB
	mqtt        *mqtt.Client
	studioID    string
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("playout engine is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		engine:    deps.Engine,
		auditRepo: deps.AuditRepo,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		studioID:  deps.StudioID,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	// The engine broadcasts through the same hub, so it is usually created
	// before the server.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected) and the audit writer, then
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stops the owned hub and flushes the audit channel.
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
