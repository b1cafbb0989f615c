// Package platform provides asset.Platform implementations: local files,
// HTTP, OCI registries, a scheme multiplexer and a caching layer.
//
// A typical setup serves every supported scheme through one cached Mux:
//
//	p := platform.NewCached(platform.Default())
//	res := asset.NewResource("https://example.com/scene.yaml")
//	data, err := res.ReadBytes(ctx, p)
package platform

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	asset "github.com/exlimit/tangram-es/core"
)

// Mux dispatches locations to platforms by URL scheme. Locations without a
// scheme are dispatched under the empty scheme "".
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]asset.Platform
}

var _ asset.Platform = (*Mux)(nil)

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]asset.Platform)}
}

// Default returns a Mux serving plain paths and file:// URLs from the local
// filesystem, http:// and https:// with the default HTTP client, and oci://
// references anonymously.
func Default() *Mux {
	m := NewMux()
	file := NewFile()
	m.Handle("", file)
	m.Handle("file", file)
	web := NewHTTP()
	m.Handle("http", web)
	m.Handle("https", web)
	m.Handle("oci", NewOCI())
	return m
}

// Handle registers p for scheme, replacing any previous registration.
// Scheme matching is case-insensitive.
func (m *Mux) Handle(scheme string, p asset.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.ToLower(scheme)] = p
}

// Platform returns the platform registered for the scheme of location.
func (m *Mux) Platform(location string) (asset.Platform, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.handlers[schemeOf(location)]
	return p, ok
}

// BytesFromFile implements asset.Platform.
func (m *Mux) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	p, ok := m.Platform(location)
	if !ok {
		return nil, &fs.PathError{
			Op:   "fetch",
			Path: location,
			Err:  fmt.Errorf("%w: %q", asset.ErrUnsupportedScheme, schemeOf(location)),
		}
	}
	return p.BytesFromFile(ctx, location)
}

// schemeOf returns the lower-cased URL scheme of location, or "" when it has
// none. Single-letter schemes are treated as Windows drive letters.
func schemeOf(location string) string {
	i := strings.Index(location, ":")
	if i < 2 {
		return ""
	}
	for j, c := range location[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return ""
		}
	}
	return strings.ToLower(location[:i])
}
