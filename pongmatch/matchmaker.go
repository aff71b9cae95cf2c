package pongmatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/castaneai/pongcoord"
)

// Dispatcher delivers a reserved match to the two longest-waiting clients.
type Dispatcher interface {
	Searching(ctx context.Context) (int, error)
	Dispatch(ctx context.Context, res pongcoord.Reservation) (*pongcoord.MatchRecord, error)
}

type Matchmaker struct {
	registry   *Registry
	client     pongcoord.BackendClient
	dispatcher Dispatcher
	recorder   pongcoord.Recorder
	secret     string
}

func NewMatchmaker(registry *Registry, client pongcoord.BackendClient, dispatcher Dispatcher, recorder pongcoord.Recorder, secret string) *Matchmaker {
	if recorder == nil {
		recorder = pongcoord.NopRecorder{}
	}
	return &Matchmaker{
		registry:   registry,
		client:     client,
		dispatcher: dispatcher,
		recorder:   recorder,
		secret:     secret,
	}
}

// Pass makes at most one match. It returns a nil record and no error when fewer than two clients are searching,
// and ErrNoReservation when no Waiting backend granted a reservation.
// Clients are popped only after a reservation has been granted.
func (m *Matchmaker) Pass(ctx context.Context) (*pongcoord.MatchRecord, error) {
	searching, err := m.dispatcher.Searching(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count searching clients: %w", err)
	}
	if searching < 2 {
		return nil, nil
	}

	res, err := m.reserve(ctx)
	if err != nil {
		return nil, err
	}
	record, err := m.dispatcher.Dispatch(ctx, *res)
	if err != nil {
		slog.Warn("abandoned reservation", "backend", res.Address.String(), "error", err)
		return nil, fmt.Errorf("failed to dispatch match on %s: %w", res.Address, err)
	}
	if err := m.recorder.RecordMatch(ctx, *record); err != nil {
		slog.Warn(fmt.Sprintf("failed to record match: %+v", err), "match", record.MatchID)
	}
	return record, nil
}

func (m *Matchmaker) reserve(ctx context.Context) (*pongcoord.Reservation, error) {
	for _, addr := range m.registry.Waiting() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens, err := m.client.Prepare(ctx, addr, m.secret)
		if err != nil {
			slog.Info("backend did not grant a reservation", "backend", addr.String(), "error", err)
			continue
		}
		if err := tokens.Validate(); err != nil {
			slog.Warn("backend granted unusable tokens", "backend", addr.String(), "error", err)
			continue
		}
		slog.Info("backend reserved", "backend", addr.String())
		return &pongcoord.Reservation{Address: addr, Tokens: *tokens}, nil
	}
	return nil, pongcoord.ErrNoReservation
}
