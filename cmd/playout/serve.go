package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tv2/tv-automation-server-core-sub000/internal/api"
	"github.com/tv2/tv-automation-server-core-sub000/internal/audit"
	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/database"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/influxdb"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/logging"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/mqtt"
	"github.com/tv2/tv-automation-server-core-sub000/internal/playout"

	// Register embedded migrations with the database package.
	_ "github.com/tv2/tv-automation-server-core-sub000/migrations"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the playout engine and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, getConfigPath(*configPath))
		},
	}
}

// run contains the serve lifecycle.
//
// Separated from the command so tests can drive it with their own context
// and config path. Resources are released in reverse order of acquisition
// when ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting playout core",
		"version", version,
		"commit", commit,
		"studio", cfg.Studio.ID,
		"show_style", cfg.ShowStyle.ID,
	)

	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations_applied", len(applied))

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// MQTT is optional: without it the timeline is only served over HTTP
	// and WebSocket, and playback reports arrive through the API.
	var mqttClient *mqtt.Client
	topics := mqtt.Topics{Prefix: cfg.Playout.TopicPrefix}
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("closing MQTT connection")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	engine := playout.NewEngine(engineDeps(cfg, db, hub, mqttClient, topics, influxClient, log))
	defer func() {
		log.Info("stopping playout engine")
		engine.Close()
	}()

	if mqttClient != nil {
		topic := topics.Playback(cfg.Studio.ID)
		if err := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), engine.HandlePlaybackMessage); err != nil {
			return fmt.Errorf("subscribing to playback reports: %w", err)
		}
		log.Info("listening for playback reports", "topic", topic)
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Engine:      engine,
		AuditRepo:   audit.NewSQLiteRepository(db.DB),
		DB:          db,
		MQTT:        mqttClient,
		ExternalHub: hub,
		StudioID:    cfg.Studio.ID,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, engine, InfluxDB,
	// MQTT, database.
	log.Info("playout core stopped")
	return nil
}

// engineDeps wires the engine to the infrastructure clients. Optional
// clients are only assigned when present so the engine sees a nil interface
// rather than a typed nil pointer.
func engineDeps(cfg *config.Config, db *database.DB, hub *api.Hub, mqttClient *mqtt.Client, topics mqtt.Topics,
	influxClient *influxdb.Client, log *logging.Logger) playout.EngineDeps {
	deps := playout.EngineDeps{
		Repo:      playout.NewSQLiteRepository(db.DB),
		Blueprint: newBlueprint(cfg.ShowStyle),
		Studio: blueprint.Studio{
			ID:   cfg.Studio.ID,
			Name: cfg.Studio.Name,
		},
		ShowStyle: blueprint.ShowStyle{
			ID:                cfg.ShowStyle.ID,
			Name:              cfg.ShowStyle.Name,
			DefaultAudioLevel: cfg.ShowStyle.DefaultAudioLevel,
		},
		Topics: topics,
		Hub:    hub,
		Config: playout.Config{
			SimulationWindow: cfg.Playout.SimulationWindow,
			MinimumTakeSpan:  cfg.Playout.MinimumTakeSpan,
			PublishQoS:       byte(cfg.Playout.PublishQoS),
			Baseline:         baselineObjects(cfg.Studio.Baseline),
		},
		Logger: log.Component("playout"),
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Metrics = influxClient
	}
	return deps
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled clients are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
