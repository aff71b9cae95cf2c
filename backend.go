package pongcoord

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Phase is the availability state a backend reports.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseWaiting
	PhasePreparing
	PhaseStarted
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseWaiting:
		return "waiting"
	case PhasePreparing:
		return "preparing"
	case PhaseStarted:
		return "started"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type BackendClient interface {
	// Query asks a backend for its current phase.
	Query(ctx context.Context, addr BackendAddress) (Phase, error)

	// Prepare asks a backend to reserve a session for two players.
	// The secret authorizes the reservation on the backend side.
	Prepare(ctx context.Context, addr BackendAddress, secret string) (*ReservationTokens, error)
}

// ReservationTokens are the two single-use session tokens granted by a backend, one per seat.
type ReservationTokens struct {
	TokenA string
	TokenB string
}

func (t *ReservationTokens) MessageName() string {
	return MessageNameTokens
}

// Validate reports whether the tokens can be split between two seats.
func (t *ReservationTokens) Validate() error {
	if t.TokenA == "" || t.TokenB == "" {
		return errors.New("missing reservation token")
	}
	if t.TokenA == t.TokenB {
		return errors.New("reservation tokens are not distinct")
	}
	return nil
}

type BackendStatus struct {
	Address             BackendAddress
	Phase               Phase
	LastSeen            time.Time
	ConsecutiveFailures int
}

// Snapshot is a point-in-time view of the coordinator state.
type Snapshot struct {
	Backends  []BackendStatus
	Searching int
}
