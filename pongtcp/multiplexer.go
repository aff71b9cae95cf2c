// Package pongtcp serves matchmaking clients over TCP.
//
// A single loop goroutine owns every client connection and the search queue.
// Accepting and reading happen in helper goroutines that only forward events to the loop,
// so no state is ever shared between goroutines.
package pongtcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/pongwire"
)

const (
	eventBufferSize   = 128
	acceptRetryDelay  = 10 * time.Millisecond
	defaultBufferSize = 512
)

var errStopped = errors.New("multiplexer stopped")

type Config struct {
	// BufferSize is the largest message read from a client at once.
	BufferSize int
	// WriteTimeout bounds a single write to a client. Zero means no deadline.
	WriteTimeout time.Duration
}

type Multiplexer struct {
	lis      net.Listener
	conf     Config
	events   chan event
	requests chan func()
	done     chan struct{}
	stopped  chan struct{}

	// owned by the loop
	clients map[pongcoord.ClientID]*client
	queue   *searchQueue
}

type client struct {
	id     pongcoord.ClientID
	conn   net.Conn
	remote string
}

type event any

type acceptedEvent struct {
	conn net.Conn
}

type receivedEvent struct {
	id   pongcoord.ClientID
	data []byte
}

type closedEvent struct {
	id  pongcoord.ClientID
	err error
}

func NewMultiplexer(lis net.Listener, conf Config) *Multiplexer {
	if conf.BufferSize <= 0 {
		conf.BufferSize = defaultBufferSize
	}
	return &Multiplexer{
		lis:      lis,
		conf:     conf,
		events:   make(chan event, eventBufferSize),
		requests: make(chan func()),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		clients:  make(map[pongcoord.ClientID]*client),
		queue:    newSearchQueue(),
	}
}

func (m *Multiplexer) Addr() net.Addr {
	return m.lis.Addr()
}

// Run serves clients until ctx is done. It closes the listener and every client connection on return.
func (m *Multiplexer) Run(ctx context.Context) error {
	slog.Info(fmt.Sprintf("listening for clients on %s", m.lis.Addr()))
	go m.acceptLoop()
	defer m.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.events:
			m.handleEvent(ev)
		case req := <-m.requests:
			req()
		}
	}
}

// Searching returns the number of queued clients.
func (m *Multiplexer) Searching(ctx context.Context) (int, error) {
	var n int
	if err := m.do(ctx, func() { n = m.queue.Len() }); err != nil {
		return 0, err
	}
	return n, nil
}

// Dispatch pops the two longest-waiting clients and sends each of them its seat of the reservation.
// When fewer than two clients are searching nothing is popped.
func (m *Multiplexer) Dispatch(ctx context.Context, res pongcoord.Reservation) (*pongcoord.MatchRecord, error) {
	if err := res.Tokens.Validate(); err != nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusInvalidRequest, fmt.Errorf("failed to dispatch match: %w", err))
	}
	var (
		record *pongcoord.MatchRecord
		err    error
	)
	if doErr := m.do(ctx, func() { record, err = m.dispatch(res) }); doErr != nil {
		return nil, doErr
	}
	return record, err
}

func (m *Multiplexer) dispatch(res pongcoord.Reservation) (*pongcoord.MatchRecord, error) {
	if m.queue.Len() < 2 {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusNotEnoughClients, fmt.Errorf("%d client(s) searching", m.queue.Len()))
	}
	record := &pongcoord.MatchRecord{
		MatchID:      uuid.NewString(),
		Address:      res.Address,
		DispatchedAt: time.Now(),
	}
	for i := range record.Clients {
		id, _ := m.queue.Pop()
		record.Clients[i] = id
	}
	for i, assignment := range res.Assignments() {
		id := record.Clients[i]
		cl, ok := m.clients[id]
		if !ok {
			slog.Error("queued client has no connection", "client", id)
			continue
		}
		if err := m.send(cl, pongcoord.NewMatch(assignment)); err != nil {
			slog.Error(err.Error(), "error", err, "match", record.MatchID)
			continue
		}
		slog.Info("match sent", "match", record.MatchID, "client", id, "backend", res.Address.String(), "seat", assignment.Seat.String())
		slog.Debug("match token", "client", id, "token_prefix", tokenPrefix(assignment.Token))
	}
	return record, nil
}

// do runs fn on the loop goroutine and waits for it to finish.
func (m *Multiplexer) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case m.requests <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return errStopped
	}
	<-finished
	return nil
}

func (m *Multiplexer) acceptLoop() {
	defer close(m.stopped)
	for {
		conn, err := m.lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error(fmt.Sprintf("failed to accept client: %+v", err), "error", err)
			select {
			case <-time.After(acceptRetryDelay):
				continue
			case <-m.done:
				return
			}
		}
		if !m.emit(acceptedEvent{conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

func (m *Multiplexer) readLoop(cl *client) {
	buf := make([]byte, m.conf.BufferSize)
	for {
		n, err := cl.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !m.emit(receivedEvent{id: cl.id, data: data}) {
				return
			}
		}
		if err != nil {
			m.emit(closedEvent{id: cl.id, err: err})
			return
		}
	}
}

func (m *Multiplexer) emit(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Multiplexer) handleEvent(ev event) {
	switch ev := ev.(type) {
	case acceptedEvent:
		cl := &client{
			id:     pongcoord.ClientID(uuid.NewString()),
			conn:   ev.conn,
			remote: ev.conn.RemoteAddr().String(),
		}
		m.clients[cl.id] = cl
		go m.readLoop(cl)
		slog.Info("client connected", "client", cl.id, "remote", cl.remote)
	case receivedEvent:
		cl, ok := m.clients[ev.id]
		if !ok {
			return
		}
		m.handleMessage(cl, ev.data)
	case closedEvent:
		m.disconnect(ev.id, ev.err)
	}
}

func (m *Multiplexer) handleMessage(cl *client, data []byte) {
	msg, err := pongwire.Decode(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("dropped malformed message from client: %v", err), "client", cl.id)
		return
	}
	switch msg.(type) {
	case *pongcoord.Search:
		if !m.queue.Push(cl.id) {
			slog.Debug("client already searching", "client", cl.id)
			return
		}
		slog.Info("client searching", "client", cl.id, "searching", m.queue.Len())
	default:
		slog.Warn("invalid message from client", "client", cl.id, "kind", msg.MessageName())
	}
}

func (m *Multiplexer) disconnect(id pongcoord.ClientID, reason error) {
	cl, ok := m.clients[id]
	if !ok {
		return
	}
	delete(m.clients, id)
	wasSearching := m.queue.Remove(id)
	_ = cl.conn.Close()
	attrs := []any{"client", id, "remote", cl.remote, "searching", wasSearching}
	if reason != nil && !errors.Is(reason, net.ErrClosed) {
		attrs = append(attrs, "reason", reason.Error())
	}
	slog.Info("client disconnected", attrs...)
}

// send writes one message to a client. A failed write disconnects the client.
func (m *Multiplexer) send(cl *client, msg pongcoord.Message) error {
	data, err := pongwire.Encode(msg)
	if err != nil {
		return err
	}
	if m.conf.WriteTimeout > 0 {
		if err := cl.conn.SetWriteDeadline(time.Now().Add(m.conf.WriteTimeout)); err != nil {
			m.disconnect(cl.id, err)
			return pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("failed to set write deadline for client %s: %w", cl.id, err))
		}
	}
	if _, err := cl.conn.Write(data); err != nil {
		m.disconnect(cl.id, err)
		return pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("failed to send %s to client %s: %w", msg.MessageName(), cl.id, err))
	}
	return nil
}

func (m *Multiplexer) shutdown() {
	close(m.done)
	_ = m.lis.Close()
	<-m.stopped
	// connections accepted but not yet handled by the loop
	for drained := false; !drained; {
		select {
		case ev := <-m.events:
			if accepted, ok := ev.(acceptedEvent); ok {
				_ = accepted.conn.Close()
			}
		default:
			drained = true
		}
	}
	for id, cl := range m.clients {
		_ = cl.conn.Close()
		delete(m.clients, id)
	}
	slog.Info("client multiplexer stopped")
}

func tokenPrefix(token string) string {
	if len(token) > 4 {
		return token[:4]
	}
	return token
}
