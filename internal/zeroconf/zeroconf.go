// Package zeroconf advertises the host's peer link as an mDNS/DNS-SD
// service and lets the companion find it on the LAN.
package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service type of the peer link.
	ServiceType = "_flick._tcp"
	domain      = "local."
)

// ErrNotFound is returned by Browse when no host answered in time.
var ErrNotFound = errors.New("zeroconf: no flick host found")

// Service manages mDNS service registration.
type Service struct {
	name    string // instance name, e.g. "flick-host"
	port    int
	version string
	path    string
}

// New creates a zeroconf Service advertising the link at path on port.
func New(name string, port int, path, version string) *Service {
	return &Service{
		name:    name,
		port:    port,
		path:    path,
		version: version,
	}
}

// TXT returns the TXT records the service is registered with.
func (s *Service) TXT() []string {
	return []string{"node=" + s.name, "path=" + s.path, "version=" + s.version}
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	txt := s.TXT()

	server, err := zeroconf.Register(
		s.name,      // instance name
		ServiceType, // service type
		domain,      // domain
		s.port,      // port
		txt,         // TXT records
		nil,         // ifaces: nil means all interfaces
	)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"port", s.port,
		"txt", txt,
	)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}

// Browse looks for a host for up to timeout and returns the websocket URL
// of the first one found.
func Browse(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("zeroconf resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return "", fmt.Errorf("zeroconf browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ErrNotFound
		case e, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if u := entryURL(e); u != "" {
				slog.Info("zeroconf: found host", "instance", e.Instance, "url", u)
				return u, nil
			}
		}
	}
}

// entryURL builds ws://addr:port/path from a resolved entry.
func entryURL(e *zeroconf.ServiceEntry) string {
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return ""
	}
	path := "/"
	for _, t := range e.Text {
		if v, ok := strings.CutPrefix(t, "path="); ok && v != "" {
			path = v
		}
	}
	return "ws://" + net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)) + path
}
