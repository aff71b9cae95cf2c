// Package pongtest provides a scriptable game-server backend speaking the coordinator protocol over UDP.
package pongtest

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/pongwire"
)

const defaultBufferSize = 512

// Backend answers Query with its phase and Prepare with a pair of tokens,
// mirroring a real game server waiting for players.
type Backend struct {
	conn       *net.UDPConn
	mu         sync.Mutex
	phase      pongcoord.Phase
	secret     string
	tokens     *pongcoord.ReservationTokens
	silent     bool
	rawReply   []byte
	resetAfter time.Duration
	replyDelay time.Duration
	queries    int
	prepares   int
	replies    int
}

// NewBackend listens on addr (e.g. "127.0.0.1:0"). Call Serve to start answering.
func NewBackend(addr string) (*Backend, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backend address '%s': %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on '%s': %w", addr, err)
	}
	return &Backend{conn: conn, phase: pongcoord.PhaseWaiting}, nil
}

// StartBackend starts a Waiting backend on a loopback port for the duration of the test.
func StartBackend(t testing.TB) *Backend {
	t.Helper()
	b, err := NewBackend("127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start test backend: %+v", err)
	}
	go func() { _ = b.Serve() }()
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func (b *Backend) Address() pongcoord.BackendAddress {
	addr := b.conn.LocalAddr().(*net.UDPAddr)
	return pongcoord.BackendAddress{Host: addr.IP.String(), Port: addr.Port}
}

func (b *Backend) Close() error {
	return b.conn.Close()
}

// Serve answers requests until the backend is closed.
func (b *Backend) Serve() error {
	buf := make([]byte, defaultBufferSize)
	for {
		n, from, err := b.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}
		reply, delay := b.handle(buf[:n], from)
		if reply == nil {
			continue
		}
		if delay > 0 {
			time.AfterFunc(delay, func() { b.reply(reply, from) })
			continue
		}
		b.reply(reply, from)
	}
}

func (b *Backend) reply(data []byte, to netip.AddrPort) {
	if _, err := b.conn.WriteToUDPAddrPort(data, to); err != nil {
		slog.Debug(fmt.Sprintf("failed to reply to %s: %v", to, err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies++
}

func (b *Backend) handle(data []byte, from netip.AddrPort) ([]byte, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reply := b.answer(data, from)
	return reply, b.replyDelay
}

func (b *Backend) answer(data []byte, from netip.AddrPort) []byte {
	msg, err := pongwire.Decode(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("backend received malformed request from %s: %v", from, err))
		return nil
	}
	switch m := msg.(type) {
	case *pongcoord.Query:
		b.queries++
	case *pongcoord.Prepare:
		b.prepares++
		if b.silent || b.rawReply != nil {
			break
		}
		if b.phase != pongcoord.PhaseWaiting {
			return nil
		}
		if b.secret != "" && m.Secret != b.secret {
			slog.Warn(fmt.Sprintf("backend rejected prepare from %s: secret mismatch", from))
			return nil
		}
		tokens := b.tokens
		if tokens == nil {
			tokens = newTokens()
		}
		b.phase = pongcoord.PhasePreparing
		if b.resetAfter > 0 {
			time.AfterFunc(b.resetAfter, b.reset)
		}
		return mustEncode(tokens)
	default:
		return nil
	}
	if b.silent {
		return nil
	}
	if b.rawReply != nil {
		return b.rawReply
	}
	return mustEncode(&pongcoord.Status{Phase: b.phase})
}

func (b *Backend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == pongcoord.PhasePreparing {
		b.phase = pongcoord.PhaseWaiting
	}
}

func (b *Backend) SetPhase(phase pongcoord.Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phase = phase
}

func (b *Backend) Phase() pongcoord.Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// SetTokens fixes the tokens granted on Prepare. By default fresh random tokens are granted.
func (b *Backend) SetTokens(tokenA, tokenB string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = &pongcoord.ReservationTokens{TokenA: tokenA, TokenB: tokenB}
}

// SetSecret requires Prepare requests to carry secret.
func (b *Backend) SetSecret(secret string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secret = secret
}

// SetSilent makes the backend swallow every request.
func (b *Backend) SetSilent(silent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silent = silent
}

// SetRawReply makes the backend answer every request with data verbatim.
func (b *Backend) SetRawReply(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rawReply = data
}

// SetResetAfter returns the backend to Waiting this long after a granted reservation.
func (b *Backend) SetResetAfter(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetAfter = d
}

// SetReplyDelay holds every reply back for d.
func (b *Backend) SetReplyDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replyDelay = d
}

func (b *Backend) Queries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

func (b *Backend) Prepares() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prepares
}

// Replies returns the number of replies sent so far.
func (b *Backend) Replies() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.replies
}

func newTokens() *pongcoord.ReservationTokens {
	return &pongcoord.ReservationTokens{TokenA: newToken(), TokenB: newToken()}
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func mustEncode(msg pongcoord.Message) []byte {
	data, err := pongwire.Encode(msg)
	if err != nil {
		panic(err)
	}
	return data
}
