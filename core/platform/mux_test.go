package platform

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asset "github.com/exlimit/tangram-es/core"
	"github.com/exlimit/tangram-es/core/testutil"
)

func TestSchemeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		location string
		want     string
	}{
		{location: "scene.yaml", want: ""},
		{location: "/srv/scenes/scene.yaml", want: ""},
		{location: `C:\scenes\scene.yaml`, want: ""},
		{location: "file:///srv/scene.yaml", want: "file"},
		{location: "HTTPS://example.com/scene.yaml", want: "https"},
		{location: "oci://ghcr.io/acme/scenes:v1", want: "oci"},
		{location: "git+ssh://host/repo", want: "git+ssh"},
		{location: "layers/a:b.yaml", want: ""},
		{location: "1http://x", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, schemeOf(tt.location))
		})
	}
}

func TestMux(t *testing.T) {
	t.Parallel()

	local := testutil.NewMockPlatform(map[string][]byte{"scene.yaml": []byte("local")})
	remote := testutil.NewMockPlatform(map[string][]byte{"https://example.com/scene.yaml": []byte("remote")})

	m := NewMux()
	m.Handle("", local)
	m.Handle("HTTPS", remote)

	got, err := m.BytesFromFile(context.Background(), "scene.yaml")
	require.NoError(t, err)
	assert.Equal(t, "local", string(got))

	got, err = m.BytesFromFile(context.Background(), "https://example.com/scene.yaml")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(got))

	_, err = m.BytesFromFile(context.Background(), "ftp://example.com/scene.yaml")
	require.ErrorIs(t, err, asset.ErrUnsupportedScheme)
	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "ftp://example.com/scene.yaml", pathErr.Path)

	assert.Equal(t, []string{"scene.yaml"}, local.Calls())
	assert.Equal(t, []string{"https://example.com/scene.yaml"}, remote.Calls())
}

func TestDefault(t *testing.T) {
	t.Parallel()

	m := Default()
	for _, scheme := range []string{"", "file", "http", "https", "oci"} {
		_, ok := m.handlers[scheme]
		assert.True(t, ok, "scheme %q", scheme)
	}
	_, ok := m.Platform("s3://bucket/scene.yaml")
	assert.False(t, ok)
}
