package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	tangram "github.com/exlimit/tangram-es"
)

// list prints the entries of the bundle at location.
func list(ctx context.Context, l *tangram.Loader, location string, w io.Writer) error {
	res, err := l.Open(ctx, location)
	if err != nil {
		return err
	}
	if !res.IsPackaged() {
		return fmt.Errorf("%s: not a bundle", location)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIZE\tPACKED\tMETHOD\tPATH")
	for _, e := range res.Archive().Entries() {
		marker := ""
		if e.Path == res.EntryPath() {
			marker = " (root)"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s%s\n", e.UncompressedSize, e.CompressedSize, methodName(e.Method), e.Path, marker)
	}
	return tw.Flush()
}

func methodName(m uint16) string {
	switch m {
	case 0:
		return "store"
	case 8:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", m)
	}
}

// cat prints the resource at location, or ref resolved relative to it.
func cat(ctx context.Context, l *tangram.Loader, location, ref string, w io.Writer) error {
	res, err := l.Open(ctx, location)
	if err != nil {
		return err
	}
	if ref != "" {
		res, err = res.Relative(ref)
		if err != nil {
			return err
		}
	}
	data, err := l.ReadBytes(ctx, res)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// scene prints the documents of a scene in merge order with their imports.
func scene(ctx context.Context, l *tangram.Loader, location string, w io.Writer) error {
	docs, err := l.LoadScene(ctx, location)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		fmt.Fprintf(w, "%d %s (%d bytes)\n", i+1, doc.Location, len(doc.Data))
		for _, imp := range doc.Imports {
			fmt.Fprintf(w, "    import %s\n", imp)
		}
	}
	return nil
}
