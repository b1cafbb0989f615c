package asset

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver combines and inspects resource locations.
//
// Implementations must be pure: the same inputs always give the same result.
type Resolver interface {
	// Resolve combines ref with base. An absolute ref is returned unchanged.
	Resolve(ref, base string) (string, error)

	// IsAbsolute reports whether location carries a scheme.
	IsAbsolute(location string) bool

	// Path returns the path component of location.
	Path(location string) string
}

// URLResolver resolves locations with RFC 3986 reference resolution.
//
// Bases without a scheme are treated as paths: "scenes/main.yaml" combined
// with "../fonts/a.ttf" yields "fonts/a.ttf", and the result keeps the base's
// relative or rooted form.
type URLResolver struct{}

var _ Resolver = URLResolver{}

// Resolve implements Resolver.
func (URLResolver) Resolve(ref, base string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("asset: parse reference %q: %w", ref, err)
	}
	if r.IsAbs() || base == "" {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("asset: parse base %q: %w", base, err)
	}
	if b.IsAbs() || b.Host != "" {
		return b.ResolveReference(r).String(), nil
	}

	// Scheme-less base: resolve as a rooted path and restore the base's form.
	rooted := strings.HasPrefix(b.Path, "/")
	if !rooted {
		b.Path = "/" + b.Path
	}
	out := b.ResolveReference(r)
	p := out.Path
	if !rooted && !strings.HasPrefix(r.Path, "/") {
		p = strings.TrimPrefix(p, "/")
	}
	if out.RawQuery != "" {
		p += "?" + out.RawQuery
	}
	if out.Fragment != "" {
		p += "#" + out.Fragment
	}
	return p, nil
}

// IsAbsolute implements Resolver.
func (URLResolver) IsAbsolute(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

// Path implements Resolver. The path is returned as written, without
// percent-decoding, so "a%20b.yaml" names the entry stored under that exact
// name. Query and fragment are dropped.
func (URLResolver) Path(location string) string {
	p, _, _ := strings.Cut(location, "#")
	p, _, _ = strings.Cut(p, "?")
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		p = p[len(u.Scheme)+1:]
	}
	if rest, ok := strings.CutPrefix(p, "//"); ok {
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return ""
		}
		p = rest[i:]
	}
	return p
}
