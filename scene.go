package tangram

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is one scene document loaded by LoadScene.
type Document struct {
	// Location identifies the document: its location, or location!/entry
	// for a bundle entry.
	Location string

	// Resource is the resource the document was read from. Relative
	// references inside the document resolve against it.
	Resource *Resource

	// Data holds the raw YAML.
	Data []byte

	// Imports lists the documents this one imports, in declaration order,
	// identified like Location.
	Imports []string
}

// sceneHeader is the part of a scene document the loader interprets.
type sceneHeader struct {
	Import importList `yaml:"import"`
}

// importList accepts a single import or a sequence of them.
type importList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *importList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = importList{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(importList, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: import must be a string", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: import must be a string or a list of strings", value.Line)
	}
}

// parseImports returns the import references declared by a scene document.
// Empty references are dropped.
func parseImports(data []byte) ([]string, error) {
	var header sceneHeader
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(header.Import))
	for _, ref := range header.Import {
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// LoadScene opens the scene at location and every document it imports,
// directly or transitively.
//
// Imports resolve relative to the importing document, so imports inside a
// bundle name other entries of the same bundle. Documents are returned in
// merge order: each document's imports, in declaration order, precede the
// document itself, and the root document comes last. A document reached
// twice is loaded once; an import cycle is cut where it closes.
func (l *Loader) LoadScene(ctx context.Context, location string) ([]Document, error) {
	res, data, err := l.open(ctx, location)
	if err != nil {
		return nil, err
	}
	w := &sceneWalker{
		loader:  l,
		visited: make(map[string]bool),
	}
	if err := w.visit(ctx, res, data); err != nil {
		return nil, err
	}
	return w.docs, nil
}

type sceneWalker struct {
	loader  *Loader
	visited map[string]bool
	docs    []Document
}

// visit loads res and its imports depth first. data, when non-nil, holds
// res's bytes already fetched by open.
func (w *sceneWalker) visit(ctx context.Context, res *Resource, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := res.String()
	if w.visited[key] {
		w.loader.log().Debug("scene already loaded", "location", key)
		return nil
	}
	w.visited[key] = true

	if data == nil {
		var err error
		data, err = w.loader.ReadBytes(ctx, res)
		if err != nil {
			return err
		}
	}
	refs, err := parseImports(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidScene, key, err)
	}

	doc := Document{Location: key, Resource: res, Data: data}
	for _, ref := range refs {
		child, childData, err := w.resolve(ctx, res, ref)
		if err != nil {
			return fmt.Errorf("import %q from %s: %w", ref, key, err)
		}
		doc.Imports = append(doc.Imports, child.String())
		if err := w.visit(ctx, child, childData); err != nil {
			return err
		}
	}
	w.docs = append(w.docs, doc)
	return nil
}

// resolve turns an import reference into a resource. Plain targets go
// through the loader, so an imported location may itself be a bundle.
func (w *sceneWalker) resolve(ctx context.Context, from *Resource, ref string) (*Resource, []byte, error) {
	child, err := from.Relative(ref)
	if err != nil {
		return nil, nil, err
	}
	if child.IsPackaged() {
		return child, nil, nil
	}
	if w.visited[child.String()] {
		return child, nil, nil
	}
	return w.loader.open(ctx, child.Location())
}
