package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/executor"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/federation/api"
	"github.com/absmach/cohort/federation/middleware"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/events"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "cohort"
	defHTTPPort   = "7000"
	envPrefixHTTP = "COHORT_HTTP_"
	pathEnv       = ".env"
	stopTimeout   = 30 * time.Second
)

type envConfig struct {
	LogLevel          string        `env:"COHORT_LOG_LEVEL"          envDefault:"info"`
	InstanceID        string        `env:"COHORT_INSTANCE_ID"`
	NodeID            string        `env:"COHORT_NODE_ID"`
	NodeName          string        `env:"COHORT_NODE_NAME"`
	Role              string        `env:"COHORT_ROLE"               envDefault:"worker"`
	AdvertiseHost     string        `env:"COHORT_ADVERTISE_HOST"     envDefault:"localhost"`
	Seeds             []string      `env:"COHORT_SEEDS"              envSeparator:","`
	Scheduler         string        `env:"COHORT_SCHEDULER"          envDefault:"least_loaded"`
	Codec             string        `env:"COHORT_CODEC"              envDefault:"json"`
	HeartbeatInterval time.Duration `env:"COHORT_HEARTBEAT_INTERVAL" envDefault:"10s"`
	CallTimeout       time.Duration `env:"COHORT_CALL_TIMEOUT"       envDefault:"10s"`
	MaxConcurrency    int           `env:"COHORT_MAX_CONCURRENCY"    envDefault:"0"`
	TaskTimeout       time.Duration `env:"COHORT_TASK_TIMEOUT"       envDefault:"60s"`
	TrainTimeout      time.Duration `env:"COHORT_TRAIN_TIMEOUT"      envDefault:"10s"`
	SubmitTimeout     time.Duration `env:"COHORT_SUBMIT_TIMEOUT"     envDefault:"10s"`
	RoundTimeout      time.Duration `env:"COHORT_ROUND_TIMEOUT"      envDefault:"10m"`
	ExpiryInterval    time.Duration `env:"COHORT_EXPIRY_INTERVAL"    envDefault:"30s"`
	Method            string        `env:"COHORT_AGGREGATION_METHOD" envDefault:"federated_averaging"`
	SnapshotDir       string        `env:"COHORT_SNAPSHOT_DIR"`
	MQTTAddress       string        `env:"COHORT_MQTT_ADDRESS"`
	MQTTQoS           uint8         `env:"COHORT_MQTT_QOS"           envDefault:"1"`
	MQTTTimeout       time.Duration `env:"COHORT_MQTT_TIMEOUT"       envDefault:"30s"`
	MQTTUsername      string        `env:"COHORT_MQTT_USERNAME"`
	MQTTPassword      string        `env:"COHORT_MQTT_PASSWORD"`
	MQTTPrefix        string        `env:"COHORT_MQTT_PREFIX"        envDefault:"cohort"`
	OTELURL           url.URL       `env:"COHORT_OTEL_URL"`
	TraceRatio        float64       `env:"COHORT_TRACE_RATIO"        envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}
	port, err := strconv.Atoi(httpServerConfig.Port)
	if err != nil {
		logger.Error("invalid http port", slog.String("port", httpServerConfig.Port), slog.Any("error", err))

		return
	}

	self := node.NewNode(cfg.NodeName, node.Role(cfg.Role), node.Address{Host: cfg.AdvertiseHost, Port: port})
	if cfg.NodeID != "" {
		self.ID = cfg.NodeID
	}

	sink, err := newSink(cfg, self.ID, logger)
	if err != nil {
		logger.Error("failed to initialize event sink", slog.String("error", err.Error()))

		return
	}

	var store fl.Snapshotter
	if cfg.SnapshotDir != "" {
		ps, err := fl.NewPersistentStorage(cfg.SnapshotDir)
		if err != nil {
			logger.Error("failed to open snapshot directory", slog.String("dir", cfg.SnapshotDir), slog.Any("error", err))

			return
		}
		store = ps
	}

	codec := transport.JSON
	if cfg.Codec == "cbor" {
		codec = transport.CBOR
	}
	tr := transport.NewHTTP(logger, transport.WithCodec(codec))

	host := executor.New(logger)
	defer func() {
		if err := host.Close(context.Background()); err != nil {
			logger.Warn("failed to close executor", slog.Any("error", err))
		}
	}()

	svcCfg := federation.Config{
		Self:      self,
		Seeds:     cfg.Seeds,
		Scheduler: cfg.Scheduler,
		Registry: registry.Config{
			HeartbeatInterval: cfg.HeartbeatInterval,
			CallTimeout:       cfg.CallTimeout,
			MaxConcurrency:    cfg.MaxConcurrency,
		},
		Dispatcher: dispatcher.Config{TaskTimeout: cfg.TaskTimeout},
		Coordinator: coordinator.Config{
			Method:         fl.Method(cfg.Method),
			TrainTimeout:   cfg.TrainTimeout,
			MaxConcurrency: cfg.MaxConcurrency,
		},
		RoundTimeout:   cfg.RoundTimeout,
		ExpiryInterval: cfg.ExpiryInterval,
		SubmitTimeout:  cfg.SubmitTimeout,
	}

	svc, err := federation.New(svcCfg, tr, host, federation.ModelTrainer(tr, cfg.TrainTimeout), sink, store, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to create %s service: %s", svcName, err))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return svc.Start(ctx)
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}

	stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
	defer stop()
	if err := svc.Stop(stopCtx); err != nil {
		logger.Error("failed to stop node", slog.Any("error", err))
	}
}

func newSink(cfg envConfig, id string, logger *slog.Logger) (events.Sink, error) {
	if cfg.MQTTAddress == "" {
		return events.Nop(), nil
	}

	pubsub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, id, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTPrefix, cfg.MQTTTimeout, logger)
	if err != nil {
		return nil, err
	}

	return events.NewMQTT(pubsub, cfg.MQTTPrefix), nil
}
