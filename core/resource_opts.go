package asset

import (
	"log/slog"

	"github.com/exlimit/tangram-es/core/internal/archive"
)

// DefaultSceneExtension marks the root document of a bundle.
const DefaultSceneExtension = ".yaml"

// Option configures a Resource. Options are inherited by every resource
// derived from it with Relative.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	resolver        Resolver
	sceneExt        string
	maxEntrySize    uint64
	maxEntrySizeSet bool
}

func newOptions(opts []Option) *options {
	o := &options{
		resolver: URLResolver{},
		sceneExt: DefaultSceneExtension,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// log returns the logger, falling back to a discard logger if nil.
func (o *options) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// WithLogger sets the logger used for diagnostics such as unreadable
// archive entries. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithResolver sets the resolver used to combine relative references.
// The default is URLResolver.
func WithResolver(r Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithSceneExtension sets the marker a top-level entry's path must contain
// to be selected as a bundle's root document (default: ".yaml").
func WithSceneExtension(ext string) Option {
	return func(o *options) {
		if ext != "" {
			o.sceneExt = ext
		}
	}
}

// WithMaxEntrySize limits the uncompressed size of any bundle entry.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(o *options) {
		o.maxEntrySize = limit
		o.maxEntrySizeSet = true
	}
}

func (o *options) archiveOptions() []archive.Option {
	if !o.maxEntrySizeSet {
		return nil
	}
	return []archive.Option{archive.WithMaxEntrySize(o.maxEntrySize)}
}
