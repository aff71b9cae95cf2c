// Package pongmatch keeps track of backend availability and pairs searching clients onto available backends.
package pongmatch

import (
	"sync"
	"time"

	"github.com/castaneai/pongcoord"
)

// Registry holds the static backend list and the last observed phase of each backend.
// Backends are never added or removed after creation.
type Registry struct {
	mu      sync.RWMutex
	entries []pongcoord.BackendStatus
	index   map[pongcoord.BackendAddress]int
}

// NewRegistry creates a registry in which every backend starts as Unknown.
// Duplicate addresses are collapsed.
func NewRegistry(addrs []pongcoord.BackendAddress) *Registry {
	r := &Registry{index: make(map[pongcoord.BackendAddress]int, len(addrs))}
	for _, addr := range addrs {
		if _, ok := r.index[addr]; ok {
			continue
		}
		r.index[addr] = len(r.entries)
		r.entries = append(r.entries, pongcoord.BackendStatus{Address: addr, Phase: pongcoord.PhaseUnknown})
	}
	return r
}

// Entries returns a copy of every entry in registry order.
func (r *Registry) Entries() []pongcoord.BackendStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]pongcoord.BackendStatus, len(r.entries))
	copy(entries, r.entries)
	return entries
}

func (r *Registry) Addresses() []pongcoord.BackendAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]pongcoord.BackendAddress, 0, len(r.entries))
	for _, e := range r.entries {
		addrs = append(addrs, e.Address)
	}
	return addrs
}

// Waiting returns the backends last observed as Waiting, in registry order.
func (r *Registry) Waiting() []pongcoord.BackendAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var addrs []pongcoord.BackendAddress
	for _, e := range r.entries {
		if e.Phase == pongcoord.PhaseWaiting {
			addrs = append(addrs, e.Address)
		}
	}
	return addrs
}

func (r *Registry) Phase(addr pongcoord.BackendAddress) (pongcoord.Phase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[addr]
	if !ok {
		return pongcoord.PhaseUnknown, false
	}
	return r.entries[i].Phase, true
}

// Observe records a successful poll.
func (r *Registry) Observe(addr pongcoord.BackendAddress, phase pongcoord.Phase, at time.Time) (pongcoord.BackendStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[addr]
	if !ok {
		return pongcoord.BackendStatus{}, false
	}
	e := &r.entries[i]
	e.Phase = phase
	e.LastSeen = at
	e.ConsecutiveFailures = 0
	return *e, true
}

// MarkUnresponsive records a failed poll. The phase is left as it was.
func (r *Registry) MarkUnresponsive(addr pongcoord.BackendAddress) (pongcoord.BackendStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[addr]
	if !ok {
		return pongcoord.BackendStatus{}, false
	}
	e := &r.entries[i]
	e.ConsecutiveFailures++
	return *e, true
}
