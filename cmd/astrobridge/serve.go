package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/astrobridge/internal/api"
	"github.com/nerrad567/astrobridge/internal/bus"
	"github.com/nerrad567/astrobridge/internal/dispatch"
	"github.com/nerrad567/astrobridge/internal/equipment"
	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
	"github.com/nerrad567/astrobridge/internal/infrastructure/database"
	"github.com/nerrad567/astrobridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/astrobridge/internal/infrastructure/logging"
	"github.com/nerrad567/astrobridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/astrobridge/internal/metrics"
	"github.com/nerrad567/astrobridge/internal/process"
	"github.com/nerrad567/astrobridge/internal/watcher"
	_ "github.com/nerrad567/astrobridge/migrations"
)

const (
	// dispatchQueue is the dispatcher's pending-call buffer.
	dispatchQueue = 64

	// processDrainTimeout bounds how long shutdown waits for stopped
	// processes to finish.
	processDrainTimeout = 10 * time.Second

	// archivePruneInterval is how often expired archive rows are deleted.
	archivePruneInterval = time.Hour
)

// run is the actual application logic, separated from main for testability.
// It blocks until ctx is cancelled, then shuts everything down.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // Startup sequence: linear wiring of every component
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting astrobridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"file", cfg.Logging.File.Path,
	)

	m := metrics.New()

	// Event archive (optional)
	var db *database.DB
	var archive *event.SQLiteArchive
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		archive = event.NewSQLiteArchive(db)
		log.Info("event archive enabled", "path", cfg.Database.Path)
	} else {
		log.Info("event archive disabled")
	}

	// Message bus: MQTT when enabled, otherwise in-process
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
	var eventBus bus.Bus
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		eventBus = bus.NewMQTT(mqttClient)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"prefix", topics.Prefix,
		)
	} else {
		local := bus.NewLocal()
		local.SetLogger(log.Component("bus"))
		defer local.Close()
		eventBus = local
		log.Info("MQTT disabled, using in-process bus")
	}

	// Telemetry sink (optional)
	var influxClient *influxdb.Client
	var sink watcher.TelemetrySink
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
		sink = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// The dispatcher outlives the processes so their final device updates
	// still run during shutdown.
	dispatcher := dispatch.New(dispatchQueue)
	dispatchCtx, stopDispatcher := context.WithCancel(context.Background())
	go dispatcher.Run(dispatchCtx)
	defer func() {
		stopDispatcher()
		<-dispatcher.Stopped()
	}()

	commander, simulator, stopCommander, err := newCommander(cfg, dispatcher, eventBus, topics, log)
	if err != nil {
		return err
	}
	defer stopCommander()

	registry := process.NewRegistry(process.RegistryConfig{Retention: cfg.Processes.Retention})
	registry.SetLogger(log.Component("process"))
	registry.AddListener(m)

	broadcaster := event.NewBroadcaster(event.NewHistory(cfg.History.MaxEvents))
	broadcaster.SetLogger(log.Component("event"))
	broadcaster.SetObserver(m)
	if archive != nil {
		broadcaster.SetArchive(archive)
	}

	topicWatcher := watcher.NewTopicWatcher(eventBus, topics, broadcaster, sink)
	topicWatcher.SetLogger(log.Component("watcher"))
	watchers := watcher.NewManager(
		watcher.NewProcessWatcher(registry, broadcaster, sink),
		topicWatcher,
	)
	watchers.SetLogger(log.Component("watcher"))
	if startErr := watchers.StartWatchers(ctx); startErr != nil {
		return fmt.Errorf("starting watchers: %w", startErr)
	}

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		History:     cfg.History,
		Logger:      log.Component("api"),
		Registry:    registry,
		Broadcaster: broadcaster,
		Commander:   commander,
		Simulator:   simulator,
		Metrics:     m,
		MQTT:        mqttClient,
		DB:          db,
		Version:     version,
	}
	if archive != nil {
		deps.Archive = archive
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		registry.RunPruner(gctx, cfg.Processes.PruneInterval)
		return nil
	})
	if archive != nil && cfg.Database.Retention > 0 {
		g.Go(func() error {
			runArchivePruner(gctx, archive, cfg.Database.Retention, log)
			return nil
		})
	}

	if startErr := server.Start(gctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	if err := healthCheck(ctx, server, db, mqttClient, influxClient); err != nil {
		log.Warn("startup health check failed", "error", err)
	} else {
		log.Info("all health checks passed")
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"equipment_mode", cfg.Equipment.Mode,
	)

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	registry.StopAll()
	drainProcesses(registry, processDrainTimeout, log)

	if stopErr := watchers.StopWatchers(); stopErr != nil {
		log.Error("error stopping watchers", "error", stopErr)
	}
	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	if waitErr := g.Wait(); waitErr != nil {
		log.Error("background task failed", "error", waitErr)
	}

	// Deferred calls close the remaining infrastructure in reverse order:
	// commander, dispatcher, InfluxDB, bus, database, log file.

	log.Info("astrobridge stopped")
	return nil
}

// newCommander builds the commander for the configured equipment mode.
// The returned stop function releases its subscriptions.
func newCommander(cfg *config.Config, d *dispatch.Dispatcher, b bus.Bus, topics mqtt.Topics, log *logging.Logger) (equipment.Commander, *equipment.SimulatedCommander, func(), error) {
	equipmentLog := log.Component("equipment")

	if cfg.Equipment.Mode == config.EquipmentModeMQTT {
		bc := equipment.NewBusCommander(b, topics, cfg.Equipment.CommandTimeout)
		bc.SetLogger(equipmentLog)
		if err := bc.Start(); err != nil {
			return nil, nil, nil, fmt.Errorf("starting equipment commander: %w", err)
		}
		log.Info("equipment commands routed over MQTT", "timeout", cfg.Equipment.CommandTimeout)
		return bc, nil, func() {
			if err := bc.Stop(); err != nil {
				log.Error("error stopping equipment commander", "error", err)
			}
		}, nil
	}

	sim := equipment.NewSimulatedCommander(d, cfg.Equipment.SimulatedDuration)
	sim.SetBus(b, topics)
	sim.SetLogger(equipmentLog)
	log.Info("equipment simulated", "duration", cfg.Equipment.SimulatedDuration)
	return sim, sim, func() {}, nil
}

// drainProcesses waits for every registered process to finish, giving up
// after timeout.
func drainProcesses(registry *process.Registry, timeout time.Duration, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, info := range registry.List() {
		if info.Status != process.StatusRunning {
			continue
		}
		p, ok := registry.Get(info.ID)
		if !ok {
			continue
		}
		if err := p.Wait(ctx); err != nil {
			log.Warn("processes still running at shutdown", "error", err)
			return
		}
	}
}

// runArchivePruner deletes archived events older than retention every
// archivePruneInterval until ctx is cancelled.
func runArchivePruner(ctx context.Context, archive *event.SQLiteArchive, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(archivePruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := archive.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Warn("pruning event archive failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("pruned archived events", "count", n)
			}
		}
	}
}

// healthCheck verifies the API and every enabled infrastructure connection.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, server *api.Server, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
