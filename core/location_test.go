package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLResolver_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
		base string
		want string
	}{
		{name: "empty base", ref: "a.yaml", base: "", want: "a.yaml"},
		{name: "relative base sibling", ref: "b.yaml", base: "a.yaml", want: "b.yaml"},
		{name: "relative base nested", ref: "img/x.png", base: "scenes/main.yaml", want: "scenes/img/x.png"},
		{name: "relative base parent", ref: "../x.png", base: "scenes/main.yaml", want: "x.png"},
		{name: "relative base past root", ref: "../../x.png", base: "main.yaml", want: "x.png"},
		{name: "relative base rooted ref", ref: "/srv/x.png", base: "scenes/main.yaml", want: "/srv/x.png"},
		{name: "rooted base", ref: "x.png", base: "/srv/scenes/main.yaml", want: "/srv/scenes/x.png"},
		{name: "query kept", ref: "x.png?v=1", base: "scenes/main.yaml", want: "scenes/x.png?v=1"},
		{name: "fragment kept", ref: "x.yaml#layers", base: "scenes/main.yaml", want: "scenes/x.yaml#layers"},
		{name: "http base", ref: "x.png", base: "https://example.com/a/b.yaml", want: "https://example.com/a/x.png"},
		{name: "http base parent", ref: "../x.png", base: "https://example.com/a/b.yaml", want: "https://example.com/x.png"},
		{name: "absolute ref", ref: "https://cdn.example.com/x.png", base: "scenes/main.yaml", want: "https://cdn.example.com/x.png"},
		{name: "file base", ref: "x.png", base: "file:///srv/a.yaml", want: "file:///srv/x.png"},
		{name: "oci ref", ref: "oci://registry.example.com/scenes:v1", base: "a.yaml", want: "oci://registry.example.com/scenes:v1"},
	}

	var r URLResolver
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Resolve(tt.ref, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLResolver_ResolveInvalid(t *testing.T) {
	t.Parallel()

	var r URLResolver
	_, err := r.Resolve("%zz", "a.yaml")
	require.Error(t, err)

	_, err = r.Resolve("x.png", "http://[::1")
	require.Error(t, err)
}

func TestURLResolver_IsAbsolute(t *testing.T) {
	t.Parallel()

	var r URLResolver
	assert.True(t, r.IsAbsolute("https://example.com/a.yaml"))
	assert.True(t, r.IsAbsolute("file:///tmp/a.yaml"))
	assert.True(t, r.IsAbsolute("oci://registry/repo:tag"))
	assert.False(t, r.IsAbsolute("scenes/a.yaml"))
	assert.False(t, r.IsAbsolute("/srv/a.yaml"))
	assert.False(t, r.IsAbsolute(""))
	assert.False(t, r.IsAbsolute("%zz"))
}

func TestURLResolver_Path(t *testing.T) {
	t.Parallel()

	var r URLResolver
	assert.Equal(t, "img/a.png", r.Path("img/a.png"))
	assert.Equal(t, "img/a.png", r.Path("img/a.png?v=1#frag"))
	assert.Equal(t, "/a/b.yaml", r.Path("https://example.com/a/b.yaml"))
	assert.Equal(t, "%zz", r.Path("%zz"))
	assert.Equal(t, "a%20b.yaml", r.Path("a%20b.yaml"))
	assert.Equal(t, "fonts/Open Sans.ttf", r.Path("fonts/Open Sans.ttf#x"))
	assert.Equal(t, "/tiles/a%2Fb.png", r.Path("https://example.com/tiles/a%2Fb.png?v=1"))
	assert.Equal(t, "", r.Path("https://example.com"))
}
