package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote/errcode"

	asset "github.com/exlimit/tangram-es/core"
	"github.com/exlimit/tangram-es/core/testutil"
)

const bundleMediaType = "application/vnd.tangram.scene.bundle.v1+zip"

type layerSpec struct {
	mediaType string
	title     string
	data      []byte
}

// pushArtifact stores an image manifest with the given layers in store and
// tags it.
func pushArtifact(t *testing.T, store *memory.Store, tag string, layers []layerSpec) {
	t.Helper()
	ctx := context.Background()

	push := func(desc ocispec.Descriptor, data []byte) {
		t.Helper()
		err := store.Push(ctx, desc, bytes.NewReader(data))
		if err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
			require.NoError(t, err)
		}
	}

	push(ocispec.DescriptorEmptyJSON, ocispec.DescriptorEmptyJSON.Data)

	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: "application/vnd.tangram.scene.v1",
		Config:       ocispec.DescriptorEmptyJSON,
	}
	for _, l := range layers {
		desc := content.NewDescriptorFromBytes(l.mediaType, l.data)
		if l.title != "" {
			desc.Annotations = map[string]string{ocispec.AnnotationTitle: l.title}
		}
		push(desc, l.data)
		manifest.Layers = append(manifest.Layers, desc)
	}

	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	manifestDesc := content.NewDescriptorFromBytes(ocispec.MediaTypeImageManifest, raw)
	push(manifestDesc, raw)
	require.NoError(t, store.Tag(ctx, manifestDesc, tag))
}

func memoryTarget(store *memory.Store) OCIOption {
	return WithTargetFunc(func(context.Context, registry.Reference) (oras.ReadOnlyTarget, error) {
		return store, nil
	})
}

func TestOCI_BytesFromFile(t *testing.T) {
	t.Parallel()

	bundle := testutil.BuildZipFiles(t, map[string][]byte{"scene.yaml": []byte("sources: {}\n")}, testutil.Deflate)
	store := memory.New()
	pushArtifact(t, store, "v1", []layerSpec{{mediaType: bundleMediaType, data: bundle}})

	o := NewOCI(memoryTarget(store))
	got, err := o.BytesFromFile(context.Background(), "oci://registry.example.com/acme/scenes:v1")
	require.NoError(t, err)
	assert.Equal(t, bundle, got)

	res := asset.NewPackagedResource("oci://registry.example.com/acme/scenes:v1", got)
	require.NoError(t, res.Err())
	assert.Equal(t, "scene.yaml", res.EntryPath())
}

func TestOCI_SelectsLayer(t *testing.T) {
	t.Parallel()

	store := memory.New()
	pushArtifact(t, store, "multi", []layerSpec{
		{mediaType: "text/plain", title: "README", data: []byte("readme")},
		{mediaType: bundleMediaType, title: "city.zip", data: []byte("city bundle")},
		{mediaType: bundleMediaType, title: "terrain.zip", data: []byte("terrain bundle")},
	})

	tests := []struct {
		name      string
		opts      []OCIOption
		location  string
		want      string
		wantNoLay bool
	}{
		{
			name:     "by media type picks the first match",
			opts:     []OCIOption{WithMediaType(bundleMediaType)},
			location: "oci://registry.example.com/acme/scenes:multi",
			want:     "city bundle",
		},
		{
			name:     "by title",
			location: "oci://registry.example.com/acme/scenes:multi#terrain.zip",
			want:     "terrain bundle",
		},
		{
			name:     "title wins over media type",
			opts:     []OCIOption{WithMediaType("text/plain")},
			location: "oci://registry.example.com/acme/scenes:multi#city.zip",
			want:     "city bundle",
		},
		{
			name:      "several layers without a selector",
			location:  "oci://registry.example.com/acme/scenes:multi",
			wantNoLay: true,
		},
		{
			name:      "unknown title",
			location:  "oci://registry.example.com/acme/scenes:multi#missing.zip",
			wantNoLay: true,
		},
		{
			name:      "unknown media type",
			opts:      []OCIOption{WithMediaType("application/zip")},
			location:  "oci://registry.example.com/acme/scenes:multi",
			wantNoLay: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := NewOCI(append([]OCIOption{memoryTarget(store)}, tt.opts...)...)
			got, err := o.BytesFromFile(context.Background(), tt.location)
			if tt.wantNoLay {
				require.ErrorIs(t, err, ErrNoLayer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestOCI_Errors(t *testing.T) {
	t.Parallel()

	store := memory.New()
	pushArtifact(t, store, "v1", []layerSpec{{mediaType: bundleMediaType, data: []byte("bundle")}})
	o := NewOCI(memoryTarget(store))

	tests := []struct {
		name     string
		location string
		wantIs   error
	}{
		{name: "unknown tag", location: "oci://registry.example.com/acme/scenes:v2", wantIs: fs.ErrNotExist},
		{name: "missing tag", location: "oci://registry.example.com/acme/scenes", wantIs: ErrInvalidReference},
		{name: "invalid reference", location: "oci://not a reference", wantIs: ErrInvalidReference},
		{name: "other scheme", location: "https://registry.example.com/acme/scenes:v1", wantIs: asset.ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := o.BytesFromFile(context.Background(), tt.location)
			require.ErrorIs(t, err, tt.wantIs)
			var pathErr *fs.PathError
			require.ErrorAs(t, err, &pathErr)
			assert.Equal(t, tt.location, pathErr.Path)
		})
	}
}

func TestOCI_TargetFuncReceivesReference(t *testing.T) {
	t.Parallel()

	store := memory.New()
	pushArtifact(t, store, "v1", []layerSpec{{mediaType: bundleMediaType, data: []byte("bundle")}})

	var got registry.Reference
	o := NewOCI(WithTargetFunc(func(_ context.Context, ref registry.Reference) (oras.ReadOnlyTarget, error) {
		got = ref
		return store, nil
	}))
	_, err := o.BytesFromFile(context.Background(), "oci://localhost:5000/acme/scenes:v1")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000", got.Registry)
	assert.Equal(t, "acme/scenes", got.Repository)
	assert.Equal(t, "v1", got.Reference)
}

func TestOCI_Options(t *testing.T) {
	t.Parallel()

	o := NewOCI(WithPlainHTTP(true), WithAnonymous())
	assert.True(t, o.plainHTTP)
	assert.True(t, o.anonymous)
	require.NotNil(t, o.client)

	target, err := o.repository(context.Background(), registry.Reference{
		Registry:   "localhost:5000",
		Repository: "acme/scenes",
		Reference:  "v1",
	})
	require.NoError(t, err)
	assert.NotNil(t, target)
}

func TestMapOCIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		wantIs error
	}{
		{name: "not found", err: errdef.ErrNotFound, wantIs: fs.ErrNotExist},
		{name: "registry 404", err: &errcode.ErrorResponse{StatusCode: 404}, wantIs: fs.ErrNotExist},
		{name: "registry 401", err: &errcode.ErrorResponse{StatusCode: 401}, wantIs: ErrUnauthorized},
		{name: "registry 403", err: &errcode.ErrorResponse{StatusCode: 403}, wantIs: ErrUnauthorized},
		{name: "digest mismatch", err: content.ErrMismatchedDigest, wantIs: content.ErrMismatchedDigest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mapOCIError(tt.err), tt.wantIs)
		})
	}
}

func TestSelectLayerSingle(t *testing.T) {
	t.Parallel()

	only := ocispec.Descriptor{MediaType: "application/zip", Digest: digest.FromString("x"), Size: 1}
	got, err := selectLayer([]ocispec.Descriptor{only}, "", "")
	require.NoError(t, err)
	assert.Equal(t, only, got)

	_, err = selectLayer(nil, "", "")
	require.ErrorIs(t, err, ErrNoLayer)
}
