package pongmatch

import (
	"context"
	"errors"
	"sync"

	"github.com/castaneai/pongcoord"
)

var (
	backend1 = pongcoord.BackendAddress{Host: "127.0.0.1", Port: 5000}
	backend2 = pongcoord.BackendAddress{Host: "127.0.0.1", Port: 5001}
	backend3 = pongcoord.BackendAddress{Host: "127.0.0.1", Port: 5002}

	errTimeout = pongcoord.NewError(pongcoord.ErrorStatusTransport, errors.New("i/o timeout"))
)

type fakeBackendClient struct {
	mu         sync.Mutex
	phases     map[pongcoord.BackendAddress]pongcoord.Phase
	queryErrs  map[pongcoord.BackendAddress]error
	tokens     map[pongcoord.BackendAddress]*pongcoord.ReservationTokens
	prepareErr map[pongcoord.BackendAddress]error
	queries    map[pongcoord.BackendAddress]int
	prepares   []pongcoord.BackendAddress
	secrets    []string
}

func newFakeBackendClient() *fakeBackendClient {
	return &fakeBackendClient{
		phases:     make(map[pongcoord.BackendAddress]pongcoord.Phase),
		queryErrs:  make(map[pongcoord.BackendAddress]error),
		tokens:     make(map[pongcoord.BackendAddress]*pongcoord.ReservationTokens),
		prepareErr: make(map[pongcoord.BackendAddress]error),
		queries:    make(map[pongcoord.BackendAddress]int),
	}
}

func (c *fakeBackendClient) setPhase(addr pongcoord.BackendAddress, phase pongcoord.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases[addr] = phase
	delete(c.queryErrs, addr)
}

func (c *fakeBackendClient) setQueryError(addr pongcoord.BackendAddress, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryErrs[addr] = err
}

func (c *fakeBackendClient) setTokens(addr pongcoord.BackendAddress, tokenA, tokenB string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[addr] = &pongcoord.ReservationTokens{TokenA: tokenA, TokenB: tokenB}
}

func (c *fakeBackendClient) setPrepareError(addr pongcoord.BackendAddress, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepareErr[addr] = err
}

func (c *fakeBackendClient) queryCount(addr pongcoord.BackendAddress) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries[addr]
}

func (c *fakeBackendClient) prepared() []pongcoord.BackendAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pongcoord.BackendAddress(nil), c.prepares...)
}

func (c *fakeBackendClient) Query(ctx context.Context, addr pongcoord.BackendAddress) (pongcoord.Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[addr]++
	if err, ok := c.queryErrs[addr]; ok {
		return pongcoord.PhaseUnknown, err
	}
	phase, ok := c.phases[addr]
	if !ok {
		return pongcoord.PhaseUnknown, errTimeout
	}
	return phase, nil
}

func (c *fakeBackendClient) Prepare(ctx context.Context, addr pongcoord.BackendAddress, secret string) (*pongcoord.ReservationTokens, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepares = append(c.prepares, addr)
	c.secrets = append(c.secrets, secret)
	if err, ok := c.prepareErr[addr]; ok {
		return nil, err
	}
	tokens, ok := c.tokens[addr]
	if !ok {
		return nil, errTimeout
	}
	return tokens, nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	searching  []pongcoord.ClientID
	dispatched []pongcoord.Reservation
}

func (d *fakeDispatcher) search(ids ...pongcoord.ClientID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.searching = append(d.searching, ids...)
}

func (d *fakeDispatcher) reservations() []pongcoord.Reservation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pongcoord.Reservation(nil), d.dispatched...)
}

func (d *fakeDispatcher) Searching(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.searching), nil
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, res pongcoord.Reservation) (*pongcoord.MatchRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.searching) < 2 {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusNotEnoughClients, errors.New("not enough clients"))
	}
	record := &pongcoord.MatchRecord{
		MatchID: "match1",
		Address: res.Address,
		Clients: [2]pongcoord.ClientID{d.searching[0], d.searching[1]},
	}
	d.searching = d.searching[2:]
	d.dispatched = append(d.dispatched, res)
	return record, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	statuses []pongcoord.BackendStatus
	matches  []pongcoord.MatchRecord
}

func (r *fakeRecorder) RecordBackendStatus(ctx context.Context, status pongcoord.BackendStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeRecorder) RecordMatch(ctx context.Context, record pongcoord.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, record)
	return nil
}
