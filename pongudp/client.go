// Package pongudp talks to game-server backends over UDP.
package pongudp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/castaneai/pongcoord"
	"github.com/castaneai/pongcoord/pongwire"
)

// Client is a pongcoord.BackendClient over UDP.
// Exchanges are strictly sequential and each one uses its own connected socket,
// so a reply that arrives after its exchange timed out is never read by a later one.
type Client struct {
	resolver   *Resolver
	timeout    time.Duration
	bufferSize int
	mu         sync.Mutex
	buf        []byte
	closed     bool
}

func NewClient(resolver *Resolver, timeout time.Duration, bufferSize int) (*Client, error) {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("invalid buffer size: %d", bufferSize)
	}
	return &Client{
		resolver:   resolver,
		timeout:    timeout,
		bufferSize: bufferSize,
		buf:        make([]byte, bufferSize),
	}, nil
}

func (c *Client) Query(ctx context.Context, addr pongcoord.BackendAddress) (pongcoord.Phase, error) {
	reply, err := c.exchange(ctx, addr, &pongcoord.Query{})
	if err != nil {
		return pongcoord.PhaseUnknown, err
	}
	status, ok := reply.(*pongcoord.Status)
	if !ok {
		return pongcoord.PhaseUnknown, pongcoord.NewError(pongcoord.ErrorStatusProtocol, fmt.Errorf("unexpected reply to query from %s: %s", addr, reply.MessageName()))
	}
	return status.Phase, nil
}

func (c *Client) Prepare(ctx context.Context, addr pongcoord.BackendAddress, secret string) (*pongcoord.ReservationTokens, error) {
	reply, err := c.exchange(ctx, addr, &pongcoord.Prepare{Secret: secret})
	if err != nil {
		return nil, err
	}
	tokens, ok := reply.(*pongcoord.ReservationTokens)
	if !ok {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusProtocol, fmt.Errorf("unexpected reply to prepare from %s: %s", addr, reply.MessageName()))
	}
	return tokens, nil
}

// Close makes every later exchange fail. It does not interrupt a running one.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) exchange(ctx context.Context, addr pongcoord.BackendAddress, req pongcoord.Message) (pongcoord.Message, error) {
	ip, err := c.resolver.Resolve(ctx, addr.Host)
	if err != nil {
		return nil, err
	}
	to := netip.AddrPortFrom(ip, uint16(addr.Port))
	data, err := pongwire.Encode(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusTransport, net.ErrClosed)
	}

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(to))
	if err != nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("failed to open socket to %s: %w", addr, err))
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("failed to set deadline: %w", err))
	}
	if _, err := conn.Write(data); err != nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("failed to send %s to %s: %w", req.MessageName(), addr, err))
	}
	n, err := conn.Read(c.buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("no reply to %s from %s within %s: %w", req.MessageName(), addr, c.timeout, err))
		}
		return nil, pongcoord.NewError(pongcoord.ErrorStatusTransport, fmt.Errorf("failed to receive from %s: %w", addr, err))
	}
	return pongwire.Decode(c.buf[:n])
}
