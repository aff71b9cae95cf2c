package pongtcp

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/pongwire"
)

const (
	waitTimeout  = 5 * time.Second
	waitInterval = 10 * time.Millisecond
)

var testingBackend = pongcoord.BackendAddress{Host: "127.0.0.1", Port: 5000}

func TestSearchAndDispatch(t *testing.T) {
	mux := startMultiplexer(t)
	clientA := dialClient(t, mux)
	clientB := dialClient(t, mux)

	sendMessage(t, clientA, &pongcoord.Search{})
	waitSearching(t, mux, 1)
	sendMessage(t, clientB, &pongcoord.Search{})
	waitSearching(t, mux, 2)

	record, err := mux.Dispatch(t.Context(), pongcoord.Reservation{
		Address: testingBackend,
		Tokens:  pongcoord.ReservationTokens{TokenA: "t1", TokenB: "t2"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.MatchID)
	require.Equal(t, testingBackend, record.Address)
	require.NotEqual(t, record.Clients[0], record.Clients[1])

	matchA := readMatch(t, clientA)
	require.Equal(t, "127.0.0.1", matchA.Host)
	require.Equal(t, 5000, matchA.Port)
	require.Equal(t, "t1", matchA.Token)
	require.Equal(t, pongcoord.SeatFirst, matchA.Player.Seat)

	matchB := readMatch(t, clientB)
	require.Equal(t, "t2", matchB.Token)
	require.Equal(t, pongcoord.SeatSecond, matchB.Player.Seat)

	waitSearching(t, mux, 0)
}

func TestDispatchNotEnoughClients(t *testing.T) {
	mux := startMultiplexer(t)
	clientA := dialClient(t, mux)
	sendMessage(t, clientA, &pongcoord.Search{})
	waitSearching(t, mux, 1)

	_, err := mux.Dispatch(t.Context(), pongcoord.Reservation{
		Address: testingBackend,
		Tokens:  pongcoord.ReservationTokens{TokenA: "t1", TokenB: "t2"},
	})
	require.True(t, pongcoord.ErrorHasStatus(err, pongcoord.ErrorStatusNotEnoughClients), "unexpected error: %v", err)
	waitSearching(t, mux, 1)
	expectNoMessage(t, clientA)
}

func TestDispatchInvalidTokens(t *testing.T) {
	mux := startMultiplexer(t)
	_, err := mux.Dispatch(t.Context(), pongcoord.Reservation{
		Address: testingBackend,
		Tokens:  pongcoord.ReservationTokens{TokenA: "same", TokenB: "same"},
	})
	require.True(t, pongcoord.ErrorHasStatus(err, pongcoord.ErrorStatusInvalidRequest))
}

func TestDispatchWriteFailureDisconnectsClient(t *testing.T) {
	mux := startMultiplexer(t)
	clientA := dialClient(t, mux)
	clientB := dialClient(t, mux)
	sendMessage(t, clientA, &pongcoord.Search{})
	waitSearching(t, mux, 1)
	sendMessage(t, clientB, &pongcoord.Search{})
	waitSearching(t, mux, 2)

	res := pongcoord.Reservation{
		Address: testingBackend,
		Tokens:  pongcoord.ReservationTokens{TokenA: "t1", TokenB: "t2"},
	}
	var (
		idA    pongcoord.ClientID
		record *pongcoord.MatchRecord
		err    error
	)
	// break A's connection and dispatch within one loop turn so the read side cannot report it first
	require.NoError(t, mux.do(t.Context(), func() {
		for id, cl := range mux.clients {
			if cl.remote == clientA.LocalAddr().String() {
				idA = id
				_ = cl.conn.Close()
			}
		}
		record, err = mux.dispatch(res)
	}))
	require.NotEmpty(t, idA)
	require.NoError(t, err)
	require.Equal(t, idA, record.Clients[0])

	matchB := readMatch(t, clientB)
	require.Equal(t, "t2", matchB.Token)
	require.Equal(t, pongcoord.SeatSecond, matchB.Player.Seat)

	var connected bool
	require.NoError(t, mux.do(t.Context(), func() { _, connected = mux.clients[idA] }))
	require.False(t, connected)
	waitSearching(t, mux, 0)
}

func TestDuplicateSearch(t *testing.T) {
	mux := startMultiplexer(t)
	clientA := dialClient(t, mux)
	clientB := dialClient(t, mux)

	sendMessage(t, clientA, &pongcoord.Search{})
	waitSearching(t, mux, 1)
	sendMessage(t, clientA, &pongcoord.Search{})
	time.Sleep(100 * time.Millisecond)
	waitSearching(t, mux, 1)

	sendMessage(t, clientB, &pongcoord.Search{})
	waitSearching(t, mux, 2)
	_, err := mux.Dispatch(t.Context(), pongcoord.Reservation{
		Address: testingBackend,
		Tokens:  pongcoord.ReservationTokens{TokenA: "t1", TokenB: "t2"},
	})
	require.NoError(t, err)

	require.Equal(t, "t1", readMatch(t, clientA).Token)
	require.Equal(t, "t2", readMatch(t, clientB).Token)
	expectNoMessage(t, clientA)
	waitSearching(t, mux, 0)
}

func TestDisconnectWhileSearching(t *testing.T) {
	mux := startMultiplexer(t)
	clientA := dialClient(t, mux)
	clientB := dialClient(t, mux)
	clientC := dialClient(t, mux)

	sendMessage(t, clientA, &pongcoord.Search{})
	waitSearching(t, mux, 1)
	require.NoError(t, clientA.Close())
	waitSearching(t, mux, 0)

	sendMessage(t, clientB, &pongcoord.Search{})
	waitSearching(t, mux, 1)
	sendMessage(t, clientC, &pongcoord.Search{})
	waitSearching(t, mux, 2)
	_, err := mux.Dispatch(t.Context(), pongcoord.Reservation{
		Address: testingBackend,
		Tokens:  pongcoord.ReservationTokens{TokenA: "t1", TokenB: "t2"},
	})
	require.NoError(t, err)
	require.Equal(t, pongcoord.SeatFirst, readMatch(t, clientB).Player.Seat)
	require.Equal(t, pongcoord.SeatSecond, readMatch(t, clientC).Player.Seat)
}

func TestInvalidMessagesKeepConnection(t *testing.T) {
	mux := startMultiplexer(t)
	clientA := dialClient(t, mux)

	// wrong kind for a client
	sendMessage(t, clientA, &pongcoord.Query{})
	time.Sleep(100 * time.Millisecond)
	// malformed bytes
	_, err := clientA.Write([]byte{0x0a, 0x05, 0x01})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	waitSearching(t, mux, 0)

	sendMessage(t, clientA, &pongcoord.Search{})
	waitSearching(t, mux, 1)
}

func TestRunStopsOnContextDone(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	mux := NewMultiplexer(lis, Config{})
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Run(ctx) }()

	conn := dialClient(t, mux)
	cancel()
	require.NoError(t, mustReadChan(t, errCh))

	_, err = mux.Searching(t.Context())
	require.ErrorIs(t, err, errStopped)

	// the client connection is closed by the multiplexer
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err = conn.Read(make([]byte, 16))
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func startMultiplexer(t *testing.T) *Multiplexer {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	mux := NewMultiplexer(lis, Config{BufferSize: 512, WriteTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mux.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return mux
}

func dialClient(t *testing.T, mux *Multiplexer) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", mux.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn net.Conn, msg pongcoord.Message) {
	t.Helper()
	data, err := pongwire.Encode(msg)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func readMatch(t *testing.T, conn net.Conn) *pongcoord.Match {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	msg, err := pongwire.Decode(buf[:n])
	require.NoError(t, err)
	match, ok := msg.(*pongcoord.Match)
	require.True(t, ok, "unexpected message: %T", msg)
	return match
}

func expectNoMessage(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := conn.Read(make([]byte, 512))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func waitSearching(t *testing.T, mux *Multiplexer, expected int) {
	t.Helper()
	require.Eventually(t, func() bool {
		n, err := mux.Searching(t.Context())
		return err == nil && n == expected
	}, waitTimeout, waitInterval)
}

func mustReadChan[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for channel")
	}
	panic("unreachable")
}
