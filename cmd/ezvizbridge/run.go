package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/api"
	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
	"github.com/nerrad567/gray-logic-ezviz/internal/bridge"
	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
	"github.com/nerrad567/gray-logic-ezviz/internal/history"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-ezviz/internal/integration"
	"github.com/nerrad567/gray-logic-ezviz/internal/metrics"
	"github.com/nerrad567/gray-logic-ezviz/internal/session"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
	"github.com/nerrad567/gray-logic-ezviz/internal/telemetry"
	"github.com/nerrad567/gray-logic-ezviz/migrations"
)

const (
	// Device setup is retried with exponential backoff while the cloud is unreachable.
	setupRetryInitial = 5 * time.Second
	setupRetryMax     = 5 * time.Minute

	pruneInterval = 24 * time.Hour
)

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting EZVIZ bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.HasDevice() {
		return errors.New("ezviz.serial is required to run the bridge (see 'ezvizbridge devices')")
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	serial := strings.TrimSpace(cfg.EZVIZ.Serial)
	promMetrics := metrics.New()
	recorders := telemetry.Recorders{promMetrics}

	// Connect to InfluxDB (optional)
	snapshots := &deviceSnapshots{}
	var influxClient *influxdb.Client
	var tel *telemetry.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		tel = telemetry.New(influxClient, serial, snapshots)
		recorders = append(recorders, tel)
	} else {
		log.Info("InfluxDB disabled")
	}

	integ, err := integration.New(integration.Options{
		Client:        newCloudClient(cfg, log),
		Serial:        serial,
		Account:       accountName(cfg),
		Region:        strings.ToLower(cfg.EZVIZ.Region),
		Store:         session.NewSQLiteTokenStore(db.DB),
		Location:      cfg.Location(),
		PollInterval:  cfg.Bridge.PollInterval,
		FetchTimeout:  cfg.Bridge.FetchTimeout,
		PulseDuration: cfg.Bridge.PulseDuration,
		Recorders:     recorders,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	snapshots.integ = integ

	if regErr := promMetrics.Register(metrics.NewSnapshotCollector(integ)); regErr != nil {
		return fmt.Errorf("registering snapshot metrics: %w", regErr)
	}

	// History is recorded before the observation set sees an update.
	historyRepo := history.NewSQLiteRepository(db.DB)
	historyRecorder := history.NewRecorder(historyRepo, serial, integ, log)
	integ.AddSubscriber(historyRecorder)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.Topics{}.Health())
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		promMetrics.SetMQTTConnected(mqttClient.IsConnected())
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttBridge, bridgeErr := bridge.New(bridge.Options{
			BridgeID:       cfg.Bridge.ID,
			Version:        version,
			Device:         integ,
			MQTT:           mqttClient,
			QoS:            byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
			HealthInterval: cfg.Bridge.HealthInterval,
			Audit:          auditRepo,
			Logger:         log,
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		integ.AddListener(mqttBridge)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			promMetrics.SetMQTTConnected(true)
			mqttBridge.PublishAllState()
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
			promMetrics.SetMQTTConnected(false)
		})

		if startErr := mqttBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Start HTTP API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log)
		integ.AddListener(hub)

		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Device:   integ,
			History:  historyRepo,
			Audit:    auditRepo,
			Metrics:  promMetrics,
			DB:       db,
			Hub:      hub,
			Version:  version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled (security.jwt.secret is empty)")
		}
	} else {
		log.Info("HTTP API disabled")
	}

	if tel != nil {
		integ.AddListener(tel)
	}
	integ.AddListener(historyRecorder)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	go pruneHistory(ctx, historyRepo, cfg.Database.HistoryRetention, log)

	// The device is brought up in the background so MQTT health and the
	// API report "not ready" while the cloud is unreachable.
	setupDone := make(chan struct{})
	go func() {
		defer close(setupDone)
		setupDevice(ctx, integ, log)
	}()
	defer func() {
		<-setupDone
		log.Info("unloading device")
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		integ.Close(closeCtx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "serial", serial)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Device (polling stops, cloud logout)
	// 2. API server, MQTT bridge, MQTT (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("EZVIZ bridge stopped")
	return nil
}

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)
	return db, nil
}

// newCloudClient creates the EZVIZ client from the account settings.
// A configured token is reused instead of logging in.
func newCloudClient(cfg *config.Config, log *logging.Logger) *ezviz.Client {
	opts := ezviz.Options{
		Username:     cfg.EZVIZ.Username,
		Password:     cfg.EZVIZ.Password,
		Region:       strings.ToLower(cfg.EZVIZ.Region),
		UserAgent:    cfg.EZVIZ.UserAgent,
		Timeout:      cfg.EZVIZ.RequestTimeout,
		ImageTimeout: cfg.EZVIZ.ImageTimeout,
		Location:     cfg.Location(),
	}
	if t := cfg.EZVIZ.Token; t.SessionID != "" {
		opts.Token = &ezviz.Token{
			SessionID:        t.SessionID,
			RefreshSessionID: t.RefreshSessionID,
			Username:         t.Username,
			APIURL:           t.APIURL,
		}
	}

	client := ezviz.New(opts)
	client.SetLogger(log)
	return client
}

// accountName keys the stored session. Token-only configurations have no
// username, so the token's own username is used.
func accountName(cfg *config.Config) string {
	if cfg.EZVIZ.Username != "" {
		return cfg.EZVIZ.Username
	}
	return cfg.EZVIZ.Token.Username
}

// setupDevice brings the device up, retrying while the cloud is
// unreachable. Rejected credentials are not retried.
func setupDevice(ctx context.Context, integ *integration.Integration, log *logging.Logger) {
	delay := setupRetryInitial
	for {
		err := integ.Setup(ctx)
		switch {
		case err == nil, errors.Is(err, integration.ErrAlreadySetUp):
			return
		case ctx.Err() != nil:
			return
		case errors.Is(err, ezviz.ErrAuthentication):
			log.Error("EZVIZ rejected the account credentials, device stays offline", "error", err)
			return
		}

		log.Warn("device setup failed, retrying", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, setupRetryMax)
	}
}

// pruneHistory deletes history older than retention at startup and then
// once a day. A zero retention keeps history forever.
func pruneHistory(ctx context.Context, repo *history.SQLiteRepository, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		removed, err := repo.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("history prune failed", "error", err)
			}
			return
		}
		if removed > 0 {
			log.Info("history pruned", "removed", removed, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout
//   - db: Database connection
//   - mqttClient: MQTT client (nil when disabled)
//   - influxClient: InfluxDB client (nil when disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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

// deviceSnapshots hands telemetry the integration's snapshot. Telemetry is
// created first because the integration takes it as a recorder.
type deviceSnapshots struct {
	integ *integration.Integration
}

func (d *deviceSnapshots) Snapshot() (status.Snapshot, bool) {
	if d.integ == nil {
		return status.Snapshot{}, false
	}
	return d.integ.Snapshot()
}
