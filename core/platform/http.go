package platform

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	nethttp "net/http"

	asset "github.com/exlimit/tangram-es/core"
	assethttp "github.com/exlimit/tangram-es/core/http"
	"github.com/exlimit/tangram-es/core/internal/sizing"
)

// HTTP fetches http:// and https:// locations.
type HTTP struct {
	client  *nethttp.Client
	headers nethttp.Header
	maxSize uint64
}

var _ asset.Platform = (*HTTP)(nil)

// HTTPOption configures an HTTP platform.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) HTTPOption {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) HTTPOption {
	return func(h *HTTP) {
		for key, values := range headers {
			for _, value := range values {
				h.headers.Add(key, value)
			}
		}
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		h.headers.Set(key, value)
	}
}

// WithMaxBodySize limits the size of a response body. Larger bodies fail
// with asset.ErrTooLarge. Zero disables the limit.
func WithMaxBodySize(limit uint64) HTTPOption {
	return func(h *HTTP) {
		h.maxSize = limit
	}
}

// NewHTTP creates an HTTP platform.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client:  nethttp.DefaultClient,
		headers: make(nethttp.Header),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// BytesFromFile implements asset.Platform. Any status other than 200 is an
// error; 404 and 410 wrap fs.ErrNotExist.
func (h *HTTP) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	if scheme := schemeOf(location); scheme != "http" && scheme != "https" {
		return nil, &fs.PathError{
			Op:   "fetch",
			Path: location,
			Err:  fmt.Errorf("%w: %q", asset.ErrUnsupportedScheme, scheme),
		}
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, location, nethttp.NoBody)
	if err != nil {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: err}
	}
	for key, values := range h.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusOK:
	case nethttp.StatusNotFound, nethttp.StatusGone:
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: fmt.Errorf("%w: %s", fs.ErrNotExist, resp.Status)}
	default:
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if h.maxSize > 0 && resp.ContentLength > 0 && uint64(resp.ContentLength) > h.maxSize {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: asset.ErrTooLarge}
	}
	data, err := sizing.ReadAllWithLimit(resp.Body, h.maxSize, asset.ErrTooLarge)
	if err != nil {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: err}
	}
	return data, nil
}

// OpenSource opens location for random access over HTTP range requests,
// using the platform's client and headers. Remote bundles opened this way are
// read entry by entry instead of being downloaded whole.
func (h *HTTP) OpenSource(ctx context.Context, location string, opts ...assethttp.Option) (*assethttp.Source, error) {
	base := []assethttp.Option{
		assethttp.WithClient(h.client),
		assethttp.WithHeaders(h.headers),
	}
	return assethttp.NewSource(ctx, location, append(base, opts...)...)
}
