// Package pongredis publishes coordinator state to Redis for external observers.
//
// Backend statuses are kept in one hash per backend and dispatched matches are published
// to a pub/sub channel. Reservation tokens are never written.
package pongredis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/castaneai/pongcoord"
)

type Recorder struct {
	keyPrefix string
	client    rueidis.Client
}

func NewRecorder(keyPrefix string, client rueidis.Client) *Recorder {
	return &Recorder{keyPrefix: keyPrefix, client: client}
}

func (r *Recorder) RecordBackendStatus(ctx context.Context, status pongcoord.BackendStatus) error {
	key := redisKeyBackendStatus(r.keyPrefix, status.Address)
	cmd := r.client.B().Hset().Key(key).FieldValue().
		FieldValue(redisHashFieldPhase, strconv.Itoa(int(status.Phase))).
		FieldValue(redisHashFieldPhaseName, status.Phase.String()).
		FieldValue(redisHashFieldConsecutiveFailures, strconv.Itoa(status.ConsecutiveFailures)).
		FieldValue(redisHashFieldLastSeen, encodeLastSeen(status.LastSeen)).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to hset backend status of %s: %w", status.Address, err)
	}
	return nil
}

func (r *Recorder) RecordMatch(ctx context.Context, record pongcoord.MatchRecord) error {
	notice, err := encodeMatchNotice(record)
	if err != nil {
		return err
	}
	cmd := r.client.B().Publish().Channel(redisChannelMatches(r.keyPrefix)).Message(notice).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish match %s: %w", record.MatchID, err)
	}
	return nil
}

// GetBackendStatus reads back the last recorded status of a backend.
func (r *Recorder) GetBackendStatus(ctx context.Context, addr pongcoord.BackendAddress) (*pongcoord.BackendStatus, error) {
	cmd := r.client.B().Hgetall().Key(redisKeyBackendStatus(r.keyPrefix, addr)).Build()
	fields, err := r.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("failed to hgetall backend status of %s: %w", addr, err)
	}
	if len(fields) == 0 {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusInvalidRequest, fmt.Errorf("no status recorded for backend %s", addr))
	}
	phase, err := strconv.Atoi(fields[redisHashFieldPhase])
	if err != nil {
		return nil, fmt.Errorf("failed to parse phase of %s: %w", addr, err)
	}
	failures, err := strconv.Atoi(fields[redisHashFieldConsecutiveFailures])
	if err != nil {
		return nil, fmt.Errorf("failed to parse consecutive failures of %s: %w", addr, err)
	}
	lastSeen, err := decodeLastSeen(fields[redisHashFieldLastSeen])
	if err != nil {
		return nil, err
	}
	return &pongcoord.BackendStatus{
		Address:             addr,
		Phase:               pongcoord.Phase(phase),
		LastSeen:            lastSeen,
		ConsecutiveFailures: failures,
	}, nil
}
