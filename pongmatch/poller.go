package pongmatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/castaneai/pongcoord"
)

// Poller queries every backend on a fixed interval and runs a matchmaking pass after each cycle.
type Poller struct {
	registry   *Registry
	client     pongcoord.BackendClient
	matchmaker *Matchmaker
	recorder   pongcoord.Recorder
	interval   time.Duration
}

func NewPoller(registry *Registry, client pongcoord.BackendClient, matchmaker *Matchmaker, recorder pongcoord.Recorder, interval time.Duration) *Poller {
	if recorder == nil {
		recorder = pongcoord.NopRecorder{}
	}
	return &Poller{
		registry:   registry,
		client:     client,
		matchmaker: matchmaker,
		recorder:   recorder,
		interval:   interval,
	}
}

// Run polls immediately and then once per interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info(fmt.Sprintf("polling %d backend(s) every %s", len(p.registry.Addresses()), p.interval))
	for {
		if _, err := p.Cycle(ctx); err != nil {
			switch {
			case errors.Is(err, pongcoord.ErrNoReservation):
				slog.Info("no backend available for searching clients")
			case ctx.Err() != nil:
			default:
				slog.Error(err.Error(), "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval):
		}
	}
}

// Cycle polls every backend once, in registry order, and then runs one matchmaking pass.
func (p *Poller) Cycle(ctx context.Context) (*pongcoord.MatchRecord, error) {
	for _, addr := range p.registry.Addresses() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.poll(ctx, addr)
	}
	if p.matchmaker == nil {
		return nil, nil
	}
	return p.matchmaker.Pass(ctx)
}

func (p *Poller) poll(ctx context.Context, addr pongcoord.BackendAddress) {
	phase, err := p.client.Query(ctx, addr)
	var status pongcoord.BackendStatus
	if err != nil {
		status, _ = p.registry.MarkUnresponsive(addr)
		slog.Info("backend unresponsive", "backend", addr.String(), "phase", status.Phase.String(), "failures", status.ConsecutiveFailures, "error", err)
	} else {
		status, _ = p.registry.Observe(addr, phase, time.Now())
		if phase == pongcoord.PhaseWaiting {
			slog.Info("backend available", "backend", addr.String())
		} else {
			slog.Info("backend busy", "backend", addr.String(), "phase", phase.String())
		}
	}
	if err := p.recorder.RecordBackendStatus(ctx, status); err != nil {
		slog.Warn(fmt.Sprintf("failed to record backend status: %+v", err), "backend", addr.String())
	}
}
