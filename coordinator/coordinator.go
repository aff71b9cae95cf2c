// Package coordinator wires the client multiplexer, the backend poller and the matchmaker together.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/pongmatch"
	"github.com/castaneai/pongcoord/pongtcp"
)

type Config struct {
	ListenAddr   string
	Backends     []pongcoord.BackendAddress
	PollInterval time.Duration
	BufferSize   int
	WriteTimeout time.Duration
	Secret       string
}

func (c Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.PollInterval)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer size: %d", c.BufferSize)
	}
	if len(c.Backends) == 0 {
		return errors.New("no backends configured")
	}
	return nil
}

// Coordinator owns the two long-lived loops: the multiplexer serving clients
// and the poller that refreshes backend phases and runs the matchmaker.
type Coordinator struct {
	mux      *pongtcp.Multiplexer
	registry *pongmatch.Registry
	poller   *pongmatch.Poller
}

// New binds the client listener. A bind failure is fatal to startup.
func New(conf Config, client pongcoord.BackendClient, recorder pongcoord.Recorder) (*Coordinator, error) {
	if err := conf.validate(); err != nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusInvalidRequest, fmt.Errorf("invalid coordinator config: %w", err))
	}
	if recorder == nil {
		recorder = pongcoord.NopRecorder{}
	}
	lis, err := net.Listen("tcp", conf.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on '%s': %w", conf.ListenAddr, err)
	}
	mux := pongtcp.NewMultiplexer(lis, pongtcp.Config{
		BufferSize:   conf.BufferSize,
		WriteTimeout: conf.WriteTimeout,
	})
	registry := pongmatch.NewRegistry(conf.Backends)
	matchmaker := pongmatch.NewMatchmaker(registry, client, mux, recorder, conf.Secret)
	return &Coordinator{
		mux:      mux,
		registry: registry,
		poller:   pongmatch.NewPoller(registry, client, matchmaker, recorder, conf.PollInterval),
	}, nil
}

func (c *Coordinator) Addr() net.Addr {
	return c.mux.Addr()
}

// Run blocks until ctx is done or one of the loops fails.
func (c *Coordinator) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := c.mux.Run(ctx); err != nil {
			return fmt.Errorf("client multiplexer stopped: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := c.poller.Run(ctx); err != nil {
			return fmt.Errorf("backend poller stopped: %w", err)
		}
		return nil
	})
	err := eg.Wait()
	slog.Info("coordinator stopped")
	return err
}

// Status returns the backend registry and the number of searching clients.
func (c *Coordinator) Status(ctx context.Context) (*pongcoord.Snapshot, error) {
	searching, err := c.mux.Searching(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count searching clients: %w", err)
	}
	return &pongcoord.Snapshot{
		Backends:  c.registry.Entries(),
		Searching: searching,
	}, nil
}
