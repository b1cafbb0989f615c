package archive

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

var errInflaterClosed = errors.New("archive: inflater closed")

// defaultInflaters is shared by every Reader that is not given its own pool.
var defaultInflaters = NewInflatePool()

// InflatePool manages reusable deflate readers to reduce allocation overhead
// when many archive entries are read.
type InflatePool struct {
	pool sync.Pool
}

// NewInflatePool creates an empty pool.
func NewInflatePool() *InflatePool {
	return &InflatePool{}
}

// Decompressor satisfies zip.Decompressor. Closing the returned reader hands
// the underlying inflater back to the pool.
func (p *InflatePool) Decompressor(r io.Reader) io.ReadCloser {
	if p == nil {
		return flate.NewReader(r)
	}

	if value := p.pool.Get(); value != nil {
		fr, ok := value.(io.ReadCloser)
		if ok {
			if rs, ok := fr.(flate.Resetter); ok && rs.Reset(r, nil) == nil {
				return &pooledInflater{fr: fr, pool: p}
			}
		}
	}

	return &pooledInflater{fr: flate.NewReader(r), pool: p}
}

// pooledInflater returns its reader to the pool exactly once.
type pooledInflater struct {
	mu   sync.Mutex
	fr   io.ReadCloser
	pool *InflatePool
}

func (f *pooledInflater) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fr == nil {
		return 0, errInflaterClosed
	}
	return f.fr.Read(p)
}

func (f *pooledInflater) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fr == nil {
		return nil
	}
	err := f.fr.Close()
	f.pool.pool.Put(f.fr)
	f.fr = nil
	return err
}
