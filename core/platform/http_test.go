package platform

import (
	"bytes"
	"context"
	"io/fs"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asset "github.com/exlimit/tangram-es/core"
	"github.com/exlimit/tangram-es/core/testutil"
)

func newSceneServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/private.yaml":
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(nethttp.StatusUnauthorized)
				return
			}
		case "/gone.yaml":
			w.WriteHeader(nethttp.StatusGone)
			return
		}
		data, ok := files[r.URL.Path]
		if !ok {
			nethttp.NotFound(w, r)
			return
		}
		nethttp.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTP_BytesFromFile(t *testing.T) {
	t.Parallel()

	server := newSceneServer(t, map[string][]byte{
		"/scene.yaml":   []byte("import: roads.yaml\n"),
		"/private.yaml": []byte("private: true\n"),
	})
	h := NewHTTP(WithClient(server.Client()))

	got, err := h.BytesFromFile(context.Background(), server.URL+"/scene.yaml")
	require.NoError(t, err)
	assert.Equal(t, "import: roads.yaml\n", string(got))

	tests := []struct {
		name     string
		location string
		wantIs   error
		wantText string
	}{
		{name: "not found", location: server.URL + "/missing.yaml", wantIs: fs.ErrNotExist},
		{name: "gone", location: server.URL + "/gone.yaml", wantIs: fs.ErrNotExist},
		{name: "unauthorized", location: server.URL + "/private.yaml", wantText: "401"},
		{name: "unsupported scheme", location: "ftp://example.com/scene.yaml", wantIs: asset.ErrUnsupportedScheme},
		{name: "plain path", location: "scene.yaml", wantIs: asset.ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := h.BytesFromFile(context.Background(), tt.location)
			require.Error(t, err)
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}
			var pathErr *fs.PathError
			require.ErrorAs(t, err, &pathErr)
			assert.Equal(t, "fetch", pathErr.Op)
			assert.Equal(t, tt.location, pathErr.Path)
		})
	}
}

func TestHTTP_Headers(t *testing.T) {
	t.Parallel()

	server := newSceneServer(t, map[string][]byte{"/private.yaml": []byte("private: true\n")})
	headers := nethttp.Header{}
	headers.Set("Authorization", "Bearer token")

	for name, h := range map[string]*HTTP{
		"WithHeaders": NewHTTP(WithHeaders(headers)),
		"WithHeader":  NewHTTP(WithHeader("Authorization", "Bearer token")),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := h.BytesFromFile(context.Background(), server.URL+"/private.yaml")
			require.NoError(t, err)
			assert.Equal(t, "private: true\n", string(got))
		})
	}
}

func TestHTTP_MaxBodySize(t *testing.T) {
	t.Parallel()

	server := newSceneServer(t, map[string][]byte{"/big.yaml": bytes.Repeat([]byte("x"), 1024)})
	h := NewHTTP(WithMaxBodySize(100))

	_, err := h.BytesFromFile(context.Background(), server.URL+"/big.yaml")
	require.ErrorIs(t, err, asset.ErrTooLarge)
}

func TestHTTP_Canceled(t *testing.T) {
	t.Parallel()

	server := newSceneServer(t, map[string][]byte{"/scene.yaml": []byte("scene")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTP().BytesFromFile(ctx, server.URL+"/scene.yaml")
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTP_OpenSource(t *testing.T) {
	t.Parallel()

	bundle := testutil.BuildZipFiles(t, map[string][]byte{
		"scene.yaml":   []byte("import: sprites.yaml\n"),
		"sprites.yaml": []byte("sprites: {}\n"),
	}, testutil.Deflate)
	server := newSceneServer(t, map[string][]byte{"/private.yaml": bundle})
	h := NewHTTP(WithHeader("Authorization", "Bearer token"))

	src, err := h.OpenSource(context.Background(), server.URL+"/private.yaml")
	require.NoError(t, err)
	assert.Equal(t, int64(len(bundle)), src.Size())

	res := asset.NewPackagedResourceFromSource(server.URL+"/private.yaml", src)
	require.NoError(t, res.Err())
	sprites, err := res.Relative("sprites.yaml")
	require.NoError(t, err)
	got, err := sprites.ReadBytes(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sprites: {}\n", string(got))
}
