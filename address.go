package pongcoord

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// BackendAddress identifies a game-server backend by value.
type BackendAddress struct {
	Host string
	Port int
}

// ParseBackendAddress parses "host:port".
func ParseBackendAddress(s string) (BackendAddress, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return BackendAddress{}, NewError(ErrorStatusInvalidRequest, fmt.Errorf("invalid backend address '%s': %w", s, err))
	}
	if host == "" {
		return BackendAddress{}, NewError(ErrorStatusInvalidRequest, fmt.Errorf("missing host in backend address '%s'", s))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return BackendAddress{}, NewError(ErrorStatusInvalidRequest, fmt.Errorf("invalid port in backend address '%s'", s))
	}
	return BackendAddress{Host: host, Port: port}, nil
}

// ParseBackendAddresses parses every entry and drops duplicates, keeping the first occurrence.
func ParseBackendAddresses(list []string) ([]BackendAddress, error) {
	seen := make(map[BackendAddress]struct{}, len(list))
	addrs := make([]BackendAddress, 0, len(list))
	for _, s := range list {
		addr, err := ParseBackendAddress(s)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (a BackendAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}
