package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tpuart/internal/api"
	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
	"github.com/nerrad567/gray-logic-tpuart/migrations"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gateway",
		Long: `Start the gateway and run until interrupted.

The line engine, MQTT bridge, InfluxDB writer, address recorder and HTTP
API are started according to the configuration file. Optional components
that are disabled are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd.Context(), *configPath)
		},
	}
}

// runGateway is the gateway's main loop, separated from the command for
// testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runGateway(ctx context.Context, configPath string) error {
	logging.Default().Info("starting tpuartd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	dps, err := gateway.NewDatapoints(cfg.Datapoints)
	if err != nil {
		return fmt.Errorf("loading datapoints: %w", err)
	}

	metrics.RegisterMetrics()

	// Open the transceiver
	engine, port, err := openEngine(cfg, dps, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing serial port")
		if closeErr := port.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()

	if err := metrics.RegisterEngine(engineSnapshot(engine)); err != nil {
		log.Warn("engine metrics not registered", "error", err)
	}

	opts := gateway.BridgeOptions{
		Engine:         engine,
		Datapoints:     dps,
		Version:        version,
		HealthInterval: cfg.GetStatsInterval(),
		Logger:         log.Component("gateway"),
	}

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg.MQTT, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		opts.MQTT = mqttClient
		opts.Topics = mqttClient.Topics()
		opts.QoS = mqttClient.QoS()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		opts.TimeSeries = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the address recorder (optional)
	var recorder *gateway.Recorder
	if cfg.Database.Enabled {
		db, dbErr := openDatabase(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		recorder = gateway.NewRecorder(db.DB)
		recorder.SetLogger(log.Component("recorder"))
		if startErr := recorder.Start(); startErr != nil {
			return fmt.Errorf("starting address recorder: %w", startErr)
		}
		defer recorder.Stop()
		opts.Recorder = recorder
	} else {
		log.Info("address recorder disabled")
	}

	bridge, err := gateway.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := startAPI(ctx, cfg, log, bridge, recorder, influxClient)
		if apiErr != nil {
			return apiErr
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		bridge.SetBroadcaster(server.Hub())
	} else {
		log.Info("HTTP API disabled")
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-bridge.Done():
		if runErr := bridge.Err(); runErr != nil {
			if errors.Is(runErr, tpuart.ErrPortClosed) {
				return fmt.Errorf("transceiver lost: %w", runErr)
			}
			return fmt.Errorf("receive loop: %w", runErr)
		}
	}

	log.Info("tpuartd stopped")
	return nil
}

// connectMQTT dials the broker and wires connection logging.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic_prefix", cfg.TopicPrefix,
	)
	return client, nil
}

// openDatabase opens SQLite and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	all, err := migrations.All()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	applied, err := db.Migrate(ctx, all)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Path, "migrations_applied", applied)
	return db, nil
}

// startAPI creates and starts the HTTP server. Optional sources are only
// attached when present so the handlers can answer 503 for them.
func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, bridge *gateway.Bridge,
	recorder *gateway.Recorder, influxClient *influxdb.Client) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Gateway: bridge,
		Version: version,
	}
	if recorder != nil {
		deps.Addresses = recorder
	}
	if influxClient != nil {
		deps.History = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return server, nil
}

// engineSnapshot adapts engine counters for the Prometheus collector.
func engineSnapshot(engine *tpuart.Engine) func() metrics.EngineSnapshot {
	return func() metrics.EngineSnapshot {
		s := engine.Stats()
		return metrics.EngineSnapshot{
			TelegramsRx:         s.TelegramsRx,
			TelegramsIrrelevant: s.TelegramsIrrelevant,
			TelegramsTx:         s.TelegramsTx,
			NegativeAcks:        s.NegativeAcks,
			Timeouts:            s.Timeouts,
			UnknownBytes:        s.UnknownBytes,
			ResetIndications:    s.ResetIndications,
			ConfirmsSent:        s.ConfirmsSent,
			ChecksumErrors:      s.ChecksumErrors,
		}
	}
}
