package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	adactor "github.com/berfenger/pvlogger/internal/adapter/actor"
	"github.com/berfenger/pvlogger/internal/adapter/storage"
	"github.com/berfenger/pvlogger/internal/config"
	"github.com/berfenger/pvlogger/internal/core/actor"
	"github.com/berfenger/pvlogger/internal/core/service"
	"github.com/berfenger/pvlogger/internal/events"
	"github.com/berfenger/pvlogger/internal/metrics"
	"github.com/berfenger/pvlogger/internal/server"
	"github.com/berfenger/pvlogger/internal/util/actorutil"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		slog.Error("pvlogger stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		return fmt.Errorf("config errors: %w", err)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	loc, err := cfg.Rollup.Location()
	if err != nil {
		return err
	}

	// open stores
	minutesDB, err := storage.Open(cfg.Database, cfg.Database.MinutesDSN, logger)
	if err != nil {
		return fmt.Errorf("minutes database: %w", err)
	}
	defer storage.Close(minutesDB)
	daysDB := minutesDB
	if cfg.Database.DaysDSN != cfg.Database.MinutesDSN {
		daysDB, err = storage.Open(cfg.Database, cfg.Database.DaysDSN, logger)
		if err != nil {
			return fmt.Errorf("days database: %w", err)
		}
		defer storage.Close(daysDB)
	}
	minutes, err := storage.NewMinuteStore(minutesDB)
	if err != nil {
		return err
	}
	rollups, err := storage.NewRollupStore(daysDB)
	if err != nil {
		return err
	}

	// probe the serial line once, the scheduler acquires it per inverter afterwards
	transport := rs485_inverter.NewSerialTransport(cfg.Serial.Transport())
	if err := transport.Probe(); err != nil {
		return err
	}

	promMetrics := metrics.NewMetrics()
	client := rs485_inverter.NewClient(transport, cfg.Checksum.Layout(), cfg.Serial.Attempts,
		cfg.Serial.ReadWindow, logger, promMetrics.ClientInstrument())
	poller := service.NewFleetPoller(client, cfg.Inverters.AddressList(), logger)
	aggregator := service.NewRollupAggregator(minutes, rollups, loc, logger)
	trigger, err := service.NewTrigger(cfg.Schedule.Cron, loc)
	if err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root
	defer as.Shutdown()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(monitorActorProvider(logger, minutesDB, daysDB), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := root.SpawnNamed(props, "master")
	if err != nil {
		return err
	}
	defer root.Stop(pid)

	scheduler := service.NewScheduler(poller, minutes, aggregator, trigger, logger,
		promMetrics, actor.NewCycleObserver(root, pid))

	apiServer := server.NewServer(*cfg, root, pid, server.Backend{
		Reports: service.NewReports(minutes, rollups, loc),
		Minutes: minutes,
		Rollups: rollups,
		Metrics: promMetrics.Handler(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		err := apiServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	schedulerErr := make(chan error, 1)
	go func() {
		schedulerErr <- scheduler.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("main: shutting down gracefully, press Ctrl+C again to force")
		<-schedulerErr
	case err := <-schedulerErr:
		// the scheduler only returns on its own when its trigger fails
		runErr = err
		stop()
	case err := <-serverErr:
		runErr = fmt.Errorf("http server error: %w", err)
		stop()
		<-schedulerErr
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}

	logger.Info("main: shutdown complete")
	return runErr
}

func initConfig() (*config.Config, error) {

	// alias PORT => PVLOGGER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PVLOGGER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("pvlogger")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func monitorActorProvider(logger *zap.Logger, dbs ...*gorm.DB) actor.MonitorActorProvider {
	return func() *actor.MonitorActor {
		return actor.NewMonitorActor(storage.NewPinger(dbs...), actor.DEFAULT_STALE_AFTER, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.ActorProvider {
	if !cfg.MQTT.Enabled() {
		return nil
	}
	sensors := events.FleetSensors(cfg.MQTT.BaseTopic, cfg.Inverters.AddressList())
	return func() pactor.Actor {
		return adactor.NewMQTTActor(cfg.MQTT, sensors, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("serial.device", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", 9600)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.parity", "N")
	viper.SetDefault("serial.read_timeout_millis", 500)
	viper.SetDefault("serial.read_window", rs485_inverter.DEFAULT_READ_WINDOW)
	viper.SetDefault("serial.attempts", rs485_inverter.DEFAULT_ATTEMPTS)
	viper.SetDefault("inverters.count", 5)
	viper.SetDefault("inverters.addresses", []uint8{})
	viper.SetDefault("checksum.payload_start", rs485_inverter.DEFAULT_PAYLOAD_START)
	viper.SetDefault("checksum.payload_end", rs485_inverter.DEFAULT_PAYLOAD_END)
	viper.SetDefault("rollup.timezone", "Europe/Zurich")
	viper.SetDefault("schedule.cron", "")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.minutes_dsn", "database/pv_minutes.db")
	viper.SetDefault("database.days_dsn", "database/pv_days.db")
	viper.SetDefault("database.max_open_conns", 1)
	viper.SetDefault("database.max_idle_conns", 1)
	viper.SetDefault("database.conn_max_lifetime_seconds", 0)
	viper.SetDefault("mqtt.host", "")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "pvlogger")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Database.MinutesDSN = redactDSN(cfg.Database.Driver, cfg.Database.MinutesDSN)
	cfg.Database.DaysDSN = redactDSN(cfg.Database.Driver, cfg.Database.DaysDSN)
	slog.Info("Using", "config", cfg)
}

// redactDSN hides server DSNs, which may carry credentials. sqlite DSNs are file paths.
func redactDSN(driver, dsn string) string {
	if driver == "sqlite" {
		return dsn
	}
	return "*redacted*"
}
