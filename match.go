package pongcoord

import (
	"time"
)

// Seat is one of the two player slots in a match.
type Seat int

const (
	SeatFirst Seat = iota + 1
	SeatSecond
)

func (s Seat) String() string {
	switch s {
	case SeatFirst:
		return "first"
	case SeatSecond:
		return "second"
	default:
		return "unknown"
	}
}

// ClientID identifies one connected client for the lifetime of its connection.
type ClientID string

type MatchAssignment struct {
	Address BackendAddress
	Token   string
	Seat    Seat
}

// Reservation is a backend slot granted by a successful Prepare exchange.
type Reservation struct {
	Address BackendAddress
	Tokens  ReservationTokens
}

// Assignments splits the reservation tokens between the two seats.
func (r Reservation) Assignments() [2]MatchAssignment {
	return [2]MatchAssignment{
		{Address: r.Address, Token: r.Tokens.TokenA, Seat: SeatFirst},
		{Address: r.Address, Token: r.Tokens.TokenB, Seat: SeatSecond},
	}
}

// MatchRecord describes a dispatched match. It never carries tokens.
type MatchRecord struct {
	MatchID      string
	Address      BackendAddress
	Clients      [2]ClientID
	DispatchedAt time.Time
}
