package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	nethttp "net/http"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	asset "github.com/exlimit/tangram-es/core"
)

// ociScheme prefixes OCI locations: oci://registry/repository:tag, optionally
// followed by #title to pick a layer by its title annotation.
const ociScheme = "oci://"

// maxManifestSize bounds manifests fetched into memory.
const maxManifestSize = 4 << 20

// Sentinel errors for OCI locations.
var (
	// ErrInvalidReference is returned when an oci:// location cannot be parsed.
	ErrInvalidReference = errors.New("platform: invalid oci reference")

	// ErrNoLayer is returned when no manifest layer matches the requested
	// media type or title.
	ErrNoLayer = errors.New("platform: no matching layer")

	// ErrUnauthorized is returned when the registry rejects the credentials.
	ErrUnauthorized = errors.New("platform: unauthorized")
)

// TargetFunc returns the read-only target serving ref's repository.
type TargetFunc func(ctx context.Context, ref registry.Reference) (oras.ReadOnlyTarget, error)

// OCI fetches scene bundles stored as artifact layers in OCI registries.
type OCI struct {
	plainHTTP bool
	anonymous bool
	credStore credentials.Store
	mediaType string
	target    TargetFunc
	client    *auth.Client
}

var _ asset.Platform = (*OCI)(nil)

// OCIOption configures an OCI platform.
type OCIOption func(*OCI)

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
// This is useful for local development registries.
func WithPlainHTTP(enabled bool) OCIOption {
	return func(o *OCI) {
		o.plainHTTP = enabled
	}
}

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(store credentials.Store) OCIOption {
	return func(o *OCI) {
		o.credStore = store
	}
}

// WithDockerConfig reads credentials from ~/.docker/config.json and its
// credential helpers. If the docker config cannot be loaded the platform
// falls back to anonymous access.
func WithDockerConfig() OCIOption {
	return func(o *OCI) {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			return
		}
		o.credStore = store
	}
}

// WithAnonymous disables all authentication, including credential store lookups.
func WithAnonymous() OCIOption {
	return func(o *OCI) {
		o.anonymous = true
	}
}

// WithMediaType selects the layer carrying the bundle by media type.
// Without it a manifest must have exactly one layer, unless the location
// names one by title.
func WithMediaType(mediaType string) OCIOption {
	return func(o *OCI) {
		o.mediaType = mediaType
	}
}

// WithTargetFunc replaces the remote repository lookup, for example with an
// in-memory store or an OCI layout on disk.
func WithTargetFunc(fn TargetFunc) OCIOption {
	return func(o *OCI) {
		o.target = fn
	}
}

// NewOCI creates an OCI platform.
func NewOCI(opts ...OCIOption) *OCI {
	o := &OCI{}
	for _, opt := range opts {
		opt(o)
	}

	// Shared auth client so tokens are reused across fetches.
	o.client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if o.anonymous || o.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return o.credStore.Get(ctx, hostport)
		},
		Header: nethttp.Header{
			"User-Agent": []string{"tangram-es/1.0"},
		},
	}
	if o.target == nil {
		o.target = o.repository
	}
	return o
}

// repository creates a remote Repository for ref.
func (o *OCI) repository(_ context.Context, ref registry.Reference) (oras.ReadOnlyTarget, error) {
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	repo.PlainHTTP = o.plainHTTP
	repo.Client = o.client
	return repo, nil
}

// BytesFromFile implements asset.Platform. It resolves the reference, reads
// the image manifest and returns the content of the bundle layer.
func (o *OCI) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	data, err := o.fetch(ctx, location)
	if err != nil {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: err}
	}
	return data, nil
}

func (o *OCI) fetch(ctx context.Context, location string) ([]byte, error) {
	ref, title, err := parseOCILocation(location)
	if err != nil {
		return nil, err
	}
	target, err := o.target(ctx, ref)
	if err != nil {
		return nil, err
	}

	desc, err := target.Resolve(ctx, ref.Reference)
	if err != nil {
		return nil, mapOCIError(err)
	}
	if desc.Size > maxManifestSize {
		return nil, fmt.Errorf("manifest: %w", asset.ErrTooLarge)
	}
	raw, err := content.FetchAll(ctx, target, desc)
	if err != nil {
		return nil, mapOCIError(err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	layer, err := selectLayer(manifest.Layers, o.mediaType, title)
	if err != nil {
		return nil, err
	}
	data, err := content.FetchAll(ctx, target, layer)
	if err != nil {
		return nil, mapOCIError(err)
	}
	return data, nil
}

// parseOCILocation splits an oci:// location into a reference and an
// optional layer title.
func parseOCILocation(location string) (registry.Reference, string, error) {
	rest, ok := strings.CutPrefix(location, ociScheme)
	if !ok {
		return registry.Reference{}, "", fmt.Errorf("%w: %q", asset.ErrUnsupportedScheme, schemeOf(location))
	}
	rest, title, _ := strings.Cut(rest, "#")
	ref, err := registry.ParseReference(rest)
	if err != nil {
		return registry.Reference{}, "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if ref.Reference == "" {
		return registry.Reference{}, "", fmt.Errorf("%w: %q has no tag or digest", ErrInvalidReference, rest)
	}
	return ref, title, nil
}

// selectLayer picks the bundle layer. A title wins over a media type; with
// neither, the manifest must have exactly one layer.
func selectLayer(layers []ocispec.Descriptor, mediaType, title string) (ocispec.Descriptor, error) {
	if title != "" {
		for _, l := range layers {
			if l.Annotations[ocispec.AnnotationTitle] == title {
				return l, nil
			}
		}
		return ocispec.Descriptor{}, fmt.Errorf("%w: title %q", ErrNoLayer, title)
	}
	if mediaType != "" {
		for _, l := range layers {
			if l.MediaType == mediaType {
				return l, nil
			}
		}
		return ocispec.Descriptor{}, fmt.Errorf("%w: media type %q", ErrNoLayer, mediaType)
	}
	if len(layers) != 1 {
		return ocispec.Descriptor{}, fmt.Errorf("%w: manifest has %d layers", ErrNoLayer, len(layers))
	}
	return layers[0], nil
}

// mapOCIError maps registry errors onto fs.ErrNotExist and ErrUnauthorized.
func mapOCIError(err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case nethttp.StatusNotFound:
			return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
		case nethttp.StatusUnauthorized, nethttp.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	return err
}
