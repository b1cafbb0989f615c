package platform

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	asset "github.com/exlimit/tangram-es/core"
	"github.com/exlimit/tangram-es/core/internal/safeopen"
	"github.com/exlimit/tangram-es/core/internal/sizing"
)

// File reads scene files from the local filesystem. Locations are OS paths
// or file:// URLs.
type File struct {
	root    string
	maxSize uint64
}

var _ asset.Platform = (*File)(nil)

// FileOption configures a File platform.
type FileOption func(*File)

// WithRoot confines reads to dir. Locations are interpreted relative to dir,
// absolute paths included, and symbolic links are not followed.
func WithRoot(dir string) FileOption {
	return func(f *File) {
		f.root = dir
	}
}

// WithMaxFileSize limits the size of a single file. Larger files fail with
// asset.ErrTooLarge. Zero disables the limit.
func WithMaxFileSize(limit uint64) FileOption {
	return func(f *File) {
		f.maxSize = limit
	}
}

// NewFile creates a File platform.
func NewFile(opts ...FileOption) *File {
	f := &File{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BytesFromFile implements asset.Platform.
func (f *File) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := filePath(location)
	if err != nil {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: err}
	}

	data, err := f.read(name)
	if err != nil {
		return nil, &fs.PathError{Op: "fetch", Path: location, Err: err}
	}
	return data, nil
}

func (f *File) read(name string) ([]byte, error) {
	var (
		file *os.File
		err  error
	)
	if f.root == "" {
		file, err = os.Open(name) //nolint:gosec // reading caller-chosen scene files is the purpose
	} else {
		file, err = f.openInRoot(name)
	}
	if err != nil {
		return nil, unwrapPathError(err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("is a directory")
	}
	if f.maxSize > 0 && info.Size() > 0 && uint64(info.Size()) > f.maxSize {
		return nil, asset.ErrTooLarge
	}
	return sizing.ReadAllWithLimit(file, f.maxSize, asset.ErrTooLarge)
}

func (f *File) openInRoot(name string) (*os.File, error) {
	root, err := os.OpenRoot(f.root)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if rel == "" {
		rel = "."
	}
	return safeopen.Open(root, filepath.FromSlash(rel))
}

// filePath extracts the filesystem path from an OS path or file:// URL.
func filePath(location string) (string, error) {
	if location == "" {
		return "", fs.ErrInvalid
	}
	switch scheme := schemeOf(location); scheme {
	case "":
		return location, nil
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return "", err
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: file host %q", asset.ErrUnsupportedScheme, u.Host)
		}
		if u.Path == "" {
			return "", fs.ErrInvalid
		}
		return filepath.FromSlash(u.Path), nil
	default:
		return "", fmt.Errorf("%w: %q", asset.ErrUnsupportedScheme, scheme)
	}
}

// unwrapPathError drops the os layer's PathError so callers see one path,
// the requested location.
func unwrapPathError(err error) error {
	if pe, ok := err.(*fs.PathError); ok { //nolint:errorlint // only the outermost layer is replaced
		return pe.Err
	}
	return err
}
