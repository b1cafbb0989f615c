//go:build integration

package integration

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tangram "github.com/exlimit/tangram-es"
	"github.com/exlimit/tangram-es/core/platform"
	"github.com/exlimit/tangram-es/core/testutil"
)

func newOCILoader(t *testing.T, opts ...platform.OCIOption) *tangram.Loader {
	t.Helper()
	opts = append([]platform.OCIOption{platform.WithPlainHTTP(true), platform.WithAnonymous()}, opts...)
	l, err := tangram.NewLoader(tangram.WithPlatform(platform.NewOCI(opts...)))
	require.NoError(t, err)
	return l
}

func TestOCIBundle(t *testing.T) {
	t.Parallel()
	addr := getRegistry(t)

	bundle := testutil.BuildZip(t, []testutil.ZipEntry{
		{Path: "palette.yaml", Data: []byte("global: {red: '#f00'}\n"), Method: testutil.Store},
		{Path: "layers/roads.yaml", Data: []byte("layers: {roads: {}}\n"), Method: testutil.Deflate},
		{Path: "scene.yaml", Data: []byte("import: [layers/roads.yaml, palette.yaml]\nsources: {}\n"), Method: testutil.Deflate},
		{Path: "textures/pois.png", Data: []byte("png"), Method: testutil.Store},
	})
	location := pushScene(t, addr, "scenes/city", "v1", layer{title: "city.zip", data: bundle})

	l := newOCILoader(t)
	ctx := context.Background()

	res, err := l.Open(ctx, location)
	require.NoError(t, err)
	require.True(t, res.IsPackaged())
	assert.Equal(t, "scene.yaml", res.EntryPath())

	tex, err := res.Relative("textures/pois.png")
	require.NoError(t, err)
	data, err := l.ReadBytes(ctx, tex)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	docs, err := l.LoadScene(ctx, location)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, location+"!/layers/roads.yaml", docs[0].Location)
	assert.Equal(t, location+"!/palette.yaml", docs[1].Location)
	assert.Equal(t, location+"!/scene.yaml", docs[2].Location)
}

func TestOCILayerByTitle(t *testing.T) {
	t.Parallel()
	addr := getRegistry(t)

	city := testutil.BuildZipFiles(t, map[string][]byte{"scene.yaml": []byte("name: city\n")}, testutil.Deflate)
	terrain := testutil.BuildZipFiles(t, map[string][]byte{"scene.yaml": []byte("name: terrain\n")}, testutil.Deflate)
	location := pushScene(t, addr, "scenes/multi", "v1",
		layer{title: "city.zip", data: city},
		layer{title: "terrain.zip", data: terrain},
	)

	l := newOCILoader(t)
	ctx := context.Background()

	res, err := l.Open(ctx, location+"#terrain.zip")
	require.NoError(t, err)
	data, err := l.ReadBytes(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "name: terrain\n", string(data))

	_, err = l.Open(ctx, location)
	require.ErrorIs(t, err, tangram.ErrNoLayer)
}

func TestOCIMissingTag(t *testing.T) {
	t.Parallel()
	addr := getRegistry(t)

	l := newOCILoader(t)
	_, err := l.Open(context.Background(), "oci://"+addr+"/scenes/absent:v1")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
