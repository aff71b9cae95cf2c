package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/rueidis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/coordinator"
	"github.com/castaneai/pongcoord/pongconnect"
	"github.com/castaneai/pongcoord/pongotel"
	"github.com/castaneai/pongcoord/pongredis"
	"github.com/castaneai/pongcoord/pongudp"
)

const serviceName = "pong_coordinator"

type config struct {
	Port           string        `envconfig:"PORT" default:"4999"`
	Backends       []string      `envconfig:"BACKENDS" default:"127.0.0.1:5000,127.0.0.1:5001,127.0.0.1:5002,127.0.0.1:5003,127.0.0.1:5004"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollTimeout    time.Duration `envconfig:"POLL_TIMEOUT" default:"1s"`
	BufferSize     int           `envconfig:"BUFFER_SIZE" default:"512"`
	Secret         string        `envconfig:"SECRET"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"2s"`
	AdminPort      string        `envconfig:"ADMIN_PORT"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisKeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"pong:"`
	OTLPEndpoint   string        `envconfig:"OTLP_ENDPOINT"`
}

func main() {
	var conf config
	envconfig.MustProcess("MULTI_PONG", &conf)
	slog.Info("starting pong coordinator",
		"port", conf.Port,
		"backends", conf.Backends,
		"poll_interval", conf.PollInterval.String(),
		"poll_timeout", conf.PollTimeout.String(),
		"secret_set", conf.Secret != "")

	ctx, shutdown := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer shutdown()

	if err := run(ctx, &conf); err != nil {
		slog.Error(err.Error(), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, conf *config) error {
	backends, err := pongcoord.ParseBackendAddresses(conf.Backends)
	if err != nil {
		return fmt.Errorf("failed to parse backends: %w", err)
	}

	if conf.OTLPEndpoint != "" {
		stop, err := setupMetrics(ctx, conf.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer stop()
	}

	udpClient, err := pongudp.NewClient(pongudp.NewResolver(nil), conf.PollTimeout, conf.BufferSize)
	if err != nil {
		return err
	}
	defer udpClient.Close()
	client, err := pongotel.NewBackendClient(udpClient)
	if err != nil {
		return fmt.Errorf("failed to create backend client metrics: %w", err)
	}

	var recorder pongcoord.Recorder = pongcoord.NopRecorder{}
	if conf.RedisAddr != "" {
		redis, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{conf.RedisAddr}, DisableCache: true})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redis.Close()
		recorder = pongredis.NewRecorder(conf.RedisKeyPrefix, redis)
	}
	recorder, err = pongotel.NewRecorder(recorder)
	if err != nil {
		return fmt.Errorf("failed to create recorder metrics: %w", err)
	}

	coord, err := coordinator.New(coordinator.Config{
		ListenAddr:   fmt.Sprintf(":%s", conf.Port),
		Backends:     backends,
		PollInterval: conf.PollInterval,
		BufferSize:   conf.BufferSize,
		WriteTimeout: conf.WriteTimeout,
		Secret:       conf.Secret,
	}, client, recorder)
	if err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return coord.Run(ctx)
	})
	if conf.AdminPort != "" {
		mux := http.NewServeMux()
		mux.Handle(pongconnect.NewStatusHandler(coord))
		addr := fmt.Sprintf(":%s", conf.AdminPort)
		server := &http.Server{Addr: addr, Handler: h2c.NewHandler(mux, &http2.Server{})}
		eg.Go(func() error {
			slog.Info(fmt.Sprintf("admin status service (Connect RPC) is listening on %s...", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server stopped: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				return fmt.Errorf("failed to shutdown admin server: %w", err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func setupMetrics(ctx context.Context, endpoint string) (func(), error) {
	otelRes, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(10*time.Second))),
		metric.WithResource(otelRes),
	)
	otel.SetMeterProvider(provider)
	return func() { _ = provider.Shutdown(context.Background()) }, nil
}
