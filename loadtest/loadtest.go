package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/rueidis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/pongredis"
	"github.com/castaneai/pongcoord/pongwire"
)

const (
	serviceName = "pong_loadtest"
	scopeName   = "github.com/castaneai/pongcoord/loadtest"
)

type config struct {
	CoordinatorAddr string        `envconfig:"COORDINATOR_ADDR" default:"127.0.0.1:4999"`
	OTLPEndpoint    string        `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4317"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisKeyPrefix  string        `envconfig:"REDIS_KEY_PREFIX" default:"pong:"`
	PairInterval    time.Duration `envconfig:"PAIR_INTERVAL" default:"100ms"`
	MatchTimeout    time.Duration `envconfig:"MATCH_TIMEOUT" default:"30s"`
}

type searchResult struct {
	latency time.Duration
	match   *pongcoord.Match
	err     error
}

func main() {
	var conf config
	envconfig.MustProcess("MULTI_PONG_LOADTEST", &conf)

	ctx, shutdown := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer shutdown()

	otelRes, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		err := fmt.Errorf("failed to create otel resource: %w", err)
		slog.Error(err.Error(), "error", err)
		os.Exit(1)
	}
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(conf.OTLPEndpoint))
	if err != nil {
		err := fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		slog.Error(err.Error(), "error", err)
		os.Exit(1)
	}
	defer exporter.Shutdown(context.Background())
	otel.SetMeterProvider(metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(10*time.Second))),
		metric.WithResource(otelRes),
	))
	meter := otel.GetMeterProvider().Meter(scopeName)
	matchLatency, err := meter.Float64Histogram("pong.loadtest.match_latency_seconds", otelmetric.WithUnit("s"))
	if err != nil {
		err := fmt.Errorf("failed to create histogram: %w", err)
		slog.Error(err.Error(), "error", err)
		os.Exit(1)
	}

	if conf.RedisAddr != "" {
		go watchMatches(ctx, &conf)
	}

	slog.Info(fmt.Sprintf("pong loadtest is running against %s...", conf.CoordinatorAddr))

	ticker := time.NewTicker(conf.PairInterval)
	defer ticker.Stop()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down...")
			return
		case <-ticker.C:
			for range 2 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res := search(ctx, &conf)
					status := "ok"
					if res.err != nil {
						status = "error"
						slog.Error(res.err.Error(), "error", res.err)
					}
					matchLatency.Record(ctx, res.latency.Seconds(), otelmetric.WithAttributes(attribute.String("status", status)))
				}()
			}
		}
	}
}

// search connects as one client, asks for a match and waits for it.
func search(ctx context.Context, conf *config) searchResult {
	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", conf.CoordinatorAddr)
	if err != nil {
		return searchResult{err: fmt.Errorf("failed to connect to coordinator: %w", err)}
	}
	defer conn.Close()

	data, err := pongwire.Encode(&pongcoord.Search{})
	if err != nil {
		return searchResult{err: err}
	}
	if _, err := conn.Write(data); err != nil {
		return searchResult{err: fmt.Errorf("failed to send search: %w", err)}
	}
	if err := conn.SetReadDeadline(time.Now().Add(conf.MatchTimeout)); err != nil {
		return searchResult{err: err}
	}
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return searchResult{latency: time.Since(start), err: fmt.Errorf("failed to receive match: %w", err)}
	}
	msg, err := pongwire.Decode(buf[:n])
	if err != nil {
		return searchResult{latency: time.Since(start), err: err}
	}
	match, ok := msg.(*pongcoord.Match)
	if !ok {
		return searchResult{latency: time.Since(start), err: fmt.Errorf("unexpected message: %s", msg.MessageName())}
	}
	return searchResult{latency: time.Since(start), match: match}
}

func watchMatches(ctx context.Context, conf *config) {
	client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{conf.RedisAddr}, DisableCache: true})
	if err != nil {
		err := fmt.Errorf("failed to create redis client: %w", err)
		slog.Error(err.Error(), "error", err)
		return
	}
	defer client.Close()
	matches, err := pongredis.SubscribeMatches(ctx, conf.RedisKeyPrefix, client)
	if err != nil {
		slog.Error(err.Error(), "error", err)
		return
	}
	for record := range matches {
		slog.Info("match dispatched", "match", record.MatchID, "backend", record.Address.String())
	}
}
