package pongudp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/castaneai/pongcoord"
)

// LookupFunc returns the addresses of host.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver resolves backend hosts and caches successful results for its lifetime.
// Failures are never cached.
type Resolver struct {
	lookup LookupFunc
	mu     sync.RWMutex
	cache  map[string]netip.Addr
	group  singleflight.Group
}

// NewResolver creates a Resolver. A nil lookup uses the system resolver.
func NewResolver(lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		}
	}
	return &Resolver{
		lookup: lookup,
		cache:  make(map[string]netip.Addr),
	}
}

func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}
	r.mu.RLock()
	addr, ok := r.cache[host]
	r.mu.RUnlock()
	if ok {
		return addr, nil
	}

	// the lookup outlives any single caller
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(host, func() (any, error) {
		addrs, err := r.lookup(lookupCtx, host)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve '%s': %w", host, err)
		}
		addr, ok := pickAddr(addrs)
		if !ok {
			return nil, fmt.Errorf("failed to resolve '%s': no addresses", host)
		}
		r.mu.Lock()
		r.cache[host] = addr
		r.mu.Unlock()
		return addr, nil
	})
	select {
	case <-ctx.Done():
		return netip.Addr{}, pongcoord.NewError(pongcoord.ErrorStatusNameResolution, fmt.Errorf("failed to resolve '%s': %w", host, ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			return netip.Addr{}, pongcoord.NewError(pongcoord.ErrorStatusNameResolution, res.Err)
		}
		return res.Val.(netip.Addr), nil
	}
}

// pickAddr prefers IPv4.
func pickAddr(addrs []netip.Addr) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, addr := range addrs {
		addr = addr.Unmap()
		if addr.Is4() {
			return addr, true
		}
		if !fallback.IsValid() && addr.IsValid() {
			fallback = addr
		}
	}
	return fallback, fallback.IsValid()
}
