// Package discovery announces the upload endpoint on the local network.
package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_obft._tcp"
	Domain  = "local."
)

// Options describes the announced endpoint.
type Options struct {
	Instance string // defaults to "<hostname>-testserver"
	Port     int
	Path     string // defaults to "/upload"
	Field    string
	Version  string
}

// TXT builds the TXT records clients use to find the upload endpoint.
func TXT(opts Options) []string {
	path := opts.Path
	if path == "" {
		path = "/upload"
	}
	txt := []string{"path=" + path}
	if opts.Field != "" {
		txt = append(txt, "field="+opts.Field)
	}
	if opts.Version != "" {
		txt = append(txt, "version="+opts.Version)
	}
	return txt
}

// InstanceName returns opts.Instance or a hostname based default.
func InstanceName(opts Options) string {
	if opts.Instance != "" {
		return opts.Instance
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-device"
	}
	return fmt.Sprintf("%s-testserver", hostname)
}

// Announce registers the service and returns its shutdown function.
func Announce(ctx context.Context, opts Options) (func(), error) {
	if opts.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", opts.Port)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	server, err := zeroconf.Register(InstanceName(opts), Service, Domain, opts.Port, TXT(opts), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	return server.Shutdown, nil
}

// Browse scans for announced servers until ctx is done.
func Browse(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return fmt.Errorf("failed to browse: %w", err)
	}

	return nil
}

// Endpoint turns a browsed entry into an upload URL, preferring IPv4.
func Endpoint(e *zeroconf.ServiceEntry) (string, bool) {
	if e == nil {
		return "", false
	}
	path := "/upload"
	for _, kv := range e.Text {
		if v, ok := strings.CutPrefix(kv, "path="); ok && v != "" {
			path = v
		}
	}
	switch {
	case len(e.AddrIPv4) > 0:
		return fmt.Sprintf("http://%s:%d%s", e.AddrIPv4[0], e.Port, path), true
	case len(e.AddrIPv6) > 0:
		return fmt.Sprintf("http://[%s]:%d%s", e.AddrIPv6[0], e.Port, path), true
	}
	return "", false
}
