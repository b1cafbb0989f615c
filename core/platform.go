package asset

import "context"

// Platform fetches the bytes stored at a location.
//
// Implementations for local files, HTTP, OCI registries and caching live in
// the platform package.
type Platform interface {
	BytesFromFile(ctx context.Context, location string) ([]byte, error)
}

// PlatformFunc adapts a function to the Platform interface.
type PlatformFunc func(ctx context.Context, location string) ([]byte, error)

// BytesFromFile implements Platform.
func (f PlatformFunc) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}
