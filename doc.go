// Package tangram resolves and loads map scene assets.
//
// A scene is a YAML document that may import other documents and reference
// textures, fonts and sprite sheets by relative path. Scenes are served as
// plain files (local paths, http:// and https:// URLs, oci:// references) or
// as zip bundles whose top-level YAML entry is the root document. Relative
// references inside a bundle resolve to other entries of the same bundle.
//
// This package provides the high-level [Loader]. For resources, bundle
// readers and platforms without the loader, use the [core] and
// [core/platform] subpackages.
//
// # Quick Start
//
// Open a scene and read it:
//
//	l, err := tangram.NewLoader()
//	if err != nil {
//	    return err
//	}
//	res, err := l.Open(ctx, "https://example.com/scenes/city.zip")
//	if err != nil {
//	    return err
//	}
//	data, err := l.ReadBytes(ctx, res)
//
// Resolve a texture next to the scene:
//
//	sprite, err := res.Relative("textures/pois.png")
//	pixels, err := l.ReadBytes(ctx, sprite)
//
// Load a scene together with everything it imports:
//
//	docs, err := l.LoadScene(ctx, "scenes/city.yaml")
//	for _, doc := range docs {
//	    fmt.Println(doc.Location)
//	}
//
// # Caching
//
// Use [WithCacheDir] for a persistent content cache and, together with
// [WithRangeArchives], a block cache for remote bundles:
//
//	l, err := tangram.NewLoader(
//	    tangram.WithCacheDir("/var/cache/tangram"),
//	    tangram.WithRangeArchives(platform.NewHTTP()),
//	)
//
// Opened bundles are kept in an in-memory LRU store keyed by location, so
// reopening a bundle reuses its parsed directory.
package tangram
