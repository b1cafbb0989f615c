// Command sceneasset inspects map scenes and scene bundles.
//
// Usage:
//
//	sceneasset [flags] ls <location>
//	sceneasset [flags] cat <location> [reference]
//	sceneasset [flags] scene <location>
//
// With -cache-dir, fetched content is kept on disk between runs, compressed
// with the codec named by -cache-codec.
//
// ls lists the entries of a bundle, cat prints a scene document or an asset
// resolved relative to it, and scene prints the documents a scene imports in
// merge order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/felixge/fgprof"

	tangram "github.com/exlimit/tangram-es"
	"github.com/exlimit/tangram-es/core/cache/disk"
	"github.com/exlimit/tangram-es/core/platform"
)

type config struct {
	verbose      bool
	cacheDir     string
	cacheCodec   string
	rangeBundles bool
	plainHTTP    bool
	dockerConfig bool
	mediaType    string
	headers      headerFlags
	root         string
	timeout      time.Duration
	fgProfile    string
}

// headerFlags collects repeated -H "Key: Value" flags.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	if !strings.Contains(v, ":") {
		return fmt.Errorf("header %q: want \"Key: Value\"", v)
	}
	*h = append(*h, v)
	return nil
}

var errUsage = errors.New("usage: sceneasset [flags] ls|cat|scene <location> [reference]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "sceneasset:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return errUsage
	}

	if cfg.fgProfile != "" {
		f, err := os.Create(cfg.fgProfile)
		if err != nil {
			return err
		}
		stopFG := fgprof.Start(f, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				fmt.Fprintf(stderr, "fgprof stop error: %v\n", err)
			}
			_ = f.Close()
		}()
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	l, err := newLoader(cfg, stderr)
	if err != nil {
		return err
	}

	cmd, location := rest[0], rest[1]
	switch cmd {
	case "ls":
		return list(ctx, l, location, stdout)
	case "cat":
		ref := ""
		if len(rest) > 2 {
			ref = rest[2]
		}
		return cat(ctx, l, location, ref, stdout)
	case "scene":
		return scene(ctx, l, location, stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func parseFlags(args []string, stderr io.Writer) (config, []string, error) {
	var cfg config
	fs := flag.NewFlagSet("sceneasset", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&cfg.verbose, "v", false, "log debug output to stderr")
	fs.StringVar(&cfg.cacheDir, "cache-dir", "", "cache fetched content and bundle blocks in this directory")
	fs.StringVar(&cfg.cacheCodec, "cache-codec", "lz4", "compression of cached content: none, lz4 or zstd")
	fs.BoolVar(&cfg.rangeBundles, "range", false, "read remote .zip bundles with HTTP range requests")
	fs.BoolVar(&cfg.plainHTTP, "plain-http", false, "use plain HTTP for oci:// registries")
	fs.BoolVar(&cfg.dockerConfig, "docker-config", false, "read registry credentials from ~/.docker/config.json")
	fs.StringVar(&cfg.mediaType, "media-type", "", "media type of the bundle layer in oci:// artifacts")
	fs.Var(&cfg.headers, "H", "extra HTTP header \"Key: Value\" (repeatable)")
	fs.StringVar(&cfg.root, "root", "", "confine local file reads to this directory")
	fs.DurationVar(&cfg.timeout, "timeout", 0, "overall timeout (0 = none)")
	fs.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	if err := fs.Parse(args); err != nil {
		return config{}, nil, errors.Join(errUsage, err)
	}
	return cfg, fs.Args(), nil
}

func newLoader(cfg config, stderr io.Writer) (*tangram.Loader, error) {
	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var httpOpts []platform.HTTPOption
	for _, h := range cfg.headers {
		key, value, _ := strings.Cut(h, ":")
		httpOpts = append(httpOpts, platform.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}
	web := platform.NewHTTP(httpOpts...)

	var fileOpts []platform.FileOption
	if cfg.root != "" {
		fileOpts = append(fileOpts, platform.WithRoot(cfg.root))
	}
	file := platform.NewFile(fileOpts...)

	ociOpts := []platform.OCIOption{
		platform.WithPlainHTTP(cfg.plainHTTP),
		platform.WithMediaType(cfg.mediaType),
	}
	if cfg.dockerConfig {
		ociOpts = append(ociOpts, platform.WithDockerConfig())
	}

	mux := platform.NewMux()
	mux.Handle("", file)
	mux.Handle("file", file)
	mux.Handle("http", web)
	mux.Handle("https", web)
	mux.Handle("oci", platform.NewOCI(ociOpts...))

	opts := []tangram.Option{tangram.WithLogger(logger)}
	if cfg.cacheDir != "" {
		codec, err := disk.ParseCodec(cfg.cacheCodec)
		if err != nil {
			return nil, errors.Join(errUsage, err)
		}
		opts = append(opts, tangram.WithPlatform(mux), tangram.WithCacheDir(cfg.cacheDir, disk.WithCodec(codec)))
	} else {
		opts = append(opts, tangram.WithPlatform(platform.NewCached(mux, platform.WithLogger(logger))))
	}
	if cfg.rangeBundles {
		opts = append(opts, tangram.WithRangeArchives(web))
	}
	return tangram.NewLoader(opts...)
}
