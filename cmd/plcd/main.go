// plcd is the lighting control server.
//
// It owns one universe of dimmer channels, the group and cue registries,
// and the set of connected clients. Clients connect over WebSocket, apply
// dimmer, group and cue updates, and receive every change as it happens.
// Live input and frame output run over MQTT or OSC, and both registries
// are saved to SQLite or Redis after every change.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/nerrad567/plc-core/internal/api"
	"github.com/nerrad567/plc-core/internal/controller"
	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/infrastructure/config"
	"github.com/nerrad567/plc-core/internal/infrastructure/database"
	"github.com/nerrad567/plc-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/plc-core/internal/infrastructure/logging"
	"github.com/nerrad567/plc-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/plc-core/internal/persistence"
	"github.com/nerrad567/plc-core/internal/universe"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// stopTimeout bounds how long shutdown waits for each background loop.
const stopTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // startup sequence
	flags := pflag.NewFlagSet("plcd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", getConfigPath(), "path to the YAML configuration file")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("plcd %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting plcd", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", *configPath)

	store, err := openStore(ctx, cfg.Saving)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer func() {
		log.Info("closing snapshot store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing snapshot store", "error", closeErr)
		}
	}()
	log.Info("snapshot store ready", "backend", cfg.Saving.Backend, "autosave", cfg.Saving.Autosave)

	codec, err := dimmer.NewCodec(cfg.Saving.FormatVersion)
	if err != nil {
		return fmt.Errorf("snapshot codec: %w", err)
	}
	defaults, err := dimmer.NewDefaults(cfg.Defaults.Cue)
	if err != nil {
		return fmt.Errorf("cue defaults: %w", err)
	}
	groups := dimmer.NewGroupRegistry(codec)
	cues := dimmer.NewCueRegistry(codec, defaults)

	mode, err := universe.ParseMode(cfg.Universe.Mode)
	if err != nil {
		return err
	}
	uni, err := universe.New(cfg.Universe.Channels, mode)
	if err != nil {
		return err
	}

	var mqttClient *mqtt.Client
	if cfg.Universe.Input == config.IOMQTT || cfg.Universe.Output == config.IOMQTT {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	source, sink := buildIO(cfg, mqttClient)

	var ctrl *controller.Controller
	driver := universe.NewDriver(universe.DriverConfig{
		Channels:               cfg.Universe.Channels,
		Interval:               cfg.GetFrameInterval(),
		AllowUnreconciledInput: cfg.Universe.AllowUnreconciledInput,
	}, source, sink, func(changed dimmer.Levels) {
		ctrl.OnInputChange(changed)
	})
	driver.SetLogger(log)

	deps := controller.Deps{
		Universe:      uni,
		Groups:        groups,
		Cues:          cues,
		Defaults:      defaults,
		Output:        driver,
		Logger:        log,
		InputQueue:    cfg.Universe.InputQueue,
		FormatVersion: codec.Version(),
	}
	var saver *persistence.Saver
	if cfg.Saving.Autosave {
		saver = persistence.NewSaver(store)
		saver.SetLogger(log)
		deps.Persister = saver
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	ctrl, err = controller.New(deps)
	if err != nil {
		return err
	}

	// Background loops run on their own contexts so shutdown can stop
	// them in order: API, then driver and controller, then the saver.
	runCtx, stopRun := context.WithCancel(context.Background())
	saverCtx, stopSaver := context.WithCancel(context.Background())
	driverDone := make(chan struct{})
	defer func() {
		stopRun()
		waitFor(log, "controller", ctrl.Done())
		waitFor(log, "universe driver", driverDone)
		stopSaver()
		if saver != nil {
			waitFor(log, "snapshot saver", saver.Done())
		}
	}()

	go func() { _ = ctrl.Run(runCtx) }()
	if saver != nil {
		go saver.Run(saverCtx)
	}

	if err := restore(ctx, store, ctrl, log); err != nil {
		close(driverDone)
		return err
	}

	if err := driver.Open(runCtx); err != nil {
		close(driverDone)
		return fmt.Errorf("opening universe input: %w", err)
	}
	go func() {
		defer close(driverDone)
		if runErr := driver.Run(runCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("universe driver stopped", "error", runErr)
		}
	}()
	log.Info("universe running",
		"channels", uni.Size(),
		"mode", string(uni.Mode()),
		"input", cfg.Universe.Input,
		"output", cfg.Universe.Output,
		"live_input", driver.HasInput(),
	)

	apiDeps := api.Deps{
		Config:     cfg.Server,
		Logger:     log,
		Controller: ctrl,
		Version:    version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	go func() {
		watchErr := config.Watch(runCtx, *configPath, func(next *config.Config) {
			if err := ctrl.SetCueDefaults(runCtx, next.Defaults.Cue); err != nil {
				log.Warn("cue defaults not reloaded", "error", err)
			}
		}, func(err error) {
			log.Warn("config reload failed", "error", err)
		})
		if watchErr != nil {
			log.Warn("config watcher not running", "error", watchErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "address", cfg.ListenAddr())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, background loops
	// (controller, driver, saver), InfluxDB, MQTT, snapshot store.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PLC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PLC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore opens the configured snapshot backend.
func openStore(ctx context.Context, cfg config.SavingConfig) (persistence.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store, err := persistence.NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := persistence.OpenSQLiteStore(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// restore loads the last snapshot into the controller. A missing snapshot
// starts both registries empty.
func restore(ctx context.Context, store persistence.Store, ctrl *controller.Controller, log *logging.Logger) error {
	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, persistence.ErrNoSnapshot):
		log.Info("no saved snapshot, starting with empty registries")
		return nil
	case err != nil:
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := ctrl.Restore(ctx, snap); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	log.Info("snapshot restored", "format_version", snap.FormatVersion, "saved_at", snap.SavedAt)
	return nil
}

// buildIO returns the configured input source and output sink. Either may
// be nil.
func buildIO(cfg *config.Config, client *mqtt.Client) (universe.Source, universe.Sink) {
	var source universe.Source
	switch cfg.Universe.Input {
	case config.IOMQTT:
		source = universe.NewMQTTSource(client, cfg.MQTT.Topics.Input, byte(cfg.MQTT.QoS))
	case config.IOOSC:
		addr := net.JoinHostPort(cfg.OSC.ListenAddress, strconv.Itoa(cfg.OSC.ListenPort))
		source = universe.NewOSCSource(addr, cfg.OSC.InputPath)
	}

	var sink universe.Sink
	switch cfg.Universe.Output {
	case config.IOMQTT:
		sink = universe.NewMQTTSink(client, cfg.MQTT.Topics.Output, byte(cfg.MQTT.QoS))
	case config.IOOSC:
		sink = universe.NewOSCSink(cfg.OSC.TargetHost, cfg.OSC.TargetPort, cfg.OSC.OutputPath)
	}
	return source, sink
}

// healthCheck verifies the optional backends are reachable.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

func waitFor(log *logging.Logger, name string, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Warn("timed out waiting for shutdown", "component", name)
	}
}
