// Package testutil builds zip fixtures and in-memory collaborators for tests.
package testutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Compression methods accepted by BuildZip.
const (
	Store   = zip.Store
	Deflate = zip.Deflate
)

// ZipEntry is one file written into a fixture archive.
type ZipEntry struct {
	Path   string
	Data   []byte
	Method uint16
}

// BuildZip writes entries, in order, into a new zip archive.
func BuildZip(tb testing.TB, entries []ZipEntry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Path, Method: e.Method})
		if err != nil {
			tb.Fatalf("create entry %s: %v", e.Path, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			tb.Fatalf("write entry %s: %v", e.Path, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// BuildZipFiles writes files sorted by path with a single compression method.
func BuildZipFiles(tb testing.TB, files map[string][]byte, method uint16) []byte {
	tb.Helper()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]ZipEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, ZipEntry{Path: p, Data: files[p], Method: method})
	}
	return BuildZip(tb, entries)
}

// SetDeclaredSize rewrites the uncompressed size recorded in the central
// directory for the n-th entry (zero based). The archive must not use zip64.
func SetDeclaredSize(tb testing.TB, archive []byte, n int, size uint32) []byte {
	tb.Helper()

	out := bytes.Clone(archive)
	sig := []byte{'P', 'K', 0x01, 0x02}
	off := 0
	for i := 0; ; i++ {
		idx := bytes.Index(out[off:], sig)
		if idx < 0 {
			tb.Fatalf("central directory record %d not found", n)
		}
		off += idx
		if i == n {
			binary.LittleEndian.PutUint32(out[off+24:], size)
			return out
		}
		off += len(sig)
	}
}

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string

	mu    sync.Mutex
	reads int
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	sum := sha256.Sum256(data)
	return &MockByteSource{
		data:     data,
		sourceID: "mock:" + hex.EncodeToString(sum[:]),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Reads returns how many ReadAt calls were made.
func (m *MockByteSource) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// MockPlatform serves fixed bytes by location and records every fetch.
// Unknown locations fail with an error.
type MockPlatform struct {
	mu    sync.Mutex
	files map[string][]byte
	calls []string
}

// NewMockPlatform returns a platform serving files keyed by location.
func NewMockPlatform(files map[string][]byte) *MockPlatform {
	m := &MockPlatform{files: make(map[string][]byte, len(files))}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

// BytesFromFile returns the bytes registered for location.
func (m *MockPlatform) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, location)
	data, ok := m.files[location]
	if !ok {
		return nil, fmt.Errorf("mock platform: %s not found", location)
	}
	return bytes.Clone(data), nil
}

// Set registers or replaces the bytes served for location.
func (m *MockPlatform) Set(location string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[location] = data
}

// Calls returns the fetched locations in order.
func (m *MockPlatform) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
