package pongcoord

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBackendAddress(t *testing.T) {
	addr, err := ParseBackendAddress("127.0.0.1:5000")
	require.NoError(t, err)
	require.Equal(t, BackendAddress{Host: "127.0.0.1", Port: 5000}, addr)
	require.Equal(t, "127.0.0.1:5000", addr.String())

	addr, err = ParseBackendAddress(" [::1]:5001 ")
	require.NoError(t, err)
	require.Equal(t, BackendAddress{Host: "::1", Port: 5001}, addr)
	require.Equal(t, "[::1]:5001", addr.String())

	for _, s := range []string{"", "127.0.0.1", ":5000", "host:0", "host:65536", "host:port"} {
		_, err := ParseBackendAddress(s)
		require.True(t, ErrorHasStatus(err, ErrorStatusInvalidRequest), "expected invalid address: %q", s)
	}
}

func TestParseBackendAddresses(t *testing.T) {
	addrs, err := ParseBackendAddresses([]string{"127.0.0.1:5001", "127.0.0.1:5000", "127.0.0.1:5001"})
	require.NoError(t, err)
	require.Equal(t, []BackendAddress{
		{Host: "127.0.0.1", Port: 5001},
		{Host: "127.0.0.1", Port: 5000},
	}, addrs)

	_, err = ParseBackendAddresses([]string{"127.0.0.1:5000", "broken"})
	require.Error(t, err)
}

func TestReservationAssignments(t *testing.T) {
	res := Reservation{
		Address: BackendAddress{Host: "127.0.0.1", Port: 5000},
		Tokens:  ReservationTokens{TokenA: "t1", TokenB: "t2"},
	}
	assignments := res.Assignments()
	require.Equal(t, MatchAssignment{Address: res.Address, Token: "t1", Seat: SeatFirst}, assignments[0])
	require.Equal(t, MatchAssignment{Address: res.Address, Token: "t2", Seat: SeatSecond}, assignments[1])

	match := NewMatch(assignments[1])
	require.Equal(t, "127.0.0.1", match.Host)
	require.Equal(t, 5000, match.Port)
	require.Equal(t, SeatSecond, match.Player.Seat)
	require.Equal(t, DirectionStop, match.Player.PaddleDirection)
	require.Equal(t, float32(0.5), match.Player.PaddleLocation)
}

func TestReservationTokensValidate(t *testing.T) {
	require.NoError(t, (&ReservationTokens{TokenA: "t1", TokenB: "t2"}).Validate())
	require.Error(t, (&ReservationTokens{TokenA: "", TokenB: "t2"}).Validate())
	require.Error(t, (&ReservationTokens{TokenA: "t1"}).Validate())
	require.Error(t, (&ReservationTokens{TokenA: "t1", TokenB: "t1"}).Validate())
}

func TestErrorHasStatus(t *testing.T) {
	base := errors.New("i/o timeout")
	err := fmt.Errorf("poll failed: %w", NewError(ErrorStatusTransport, base))
	require.True(t, ErrorHasStatus(err, ErrorStatusTransport))
	require.False(t, ErrorHasStatus(err, ErrorStatusDecode))
	require.ErrorIs(t, err, base)
	require.False(t, ErrorHasStatus(base, ErrorStatusTransport))
	require.Equal(t, "waiting", PhaseWaiting.String())
	require.Equal(t, "phase(9)", Phase(9).String())
}
