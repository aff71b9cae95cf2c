package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/castaneai/pongcoord/pongtest"
)

type config struct {
	Backends   []string      `envconfig:"BACKENDS" default:"127.0.0.1:5000,127.0.0.1:5001,127.0.0.1:5002,127.0.0.1:5003,127.0.0.1:5004"`
	Secret     string        `envconfig:"SECRET"`
	ResetAfter time.Duration `envconfig:"SIM_RESET_AFTER" default:"10s"`
}

func main() {
	var conf config
	envconfig.MustProcess("MULTI_PONG", &conf)

	ctx, shutdown := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer shutdown()

	var backends []*pongtest.Backend
	for _, addr := range conf.Backends {
		b, err := pongtest.NewBackend(addr)
		if err != nil {
			slog.Error(err.Error(), "error", err)
			os.Exit(1)
		}
		b.SetSecret(conf.Secret)
		b.SetResetAfter(conf.ResetAfter)
		backends = append(backends, b)
	}

	eg := &errgroup.Group{}
	for _, b := range backends {
		eg.Go(func() error {
			slog.Info(fmt.Sprintf("simulated backend is listening on %s...", b.Address()))
			return b.Serve()
		})
	}
	<-ctx.Done()
	slog.Info("shutting down simulated backends...")
	for _, b := range backends {
		_ = b.Close()
	}
	if err := eg.Wait(); err != nil {
		slog.Error(err.Error(), "error", err)
	}
}
