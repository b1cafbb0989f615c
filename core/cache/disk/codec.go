package disk

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how cache files are compressed on disk.
type Codec int

const (
	// CodecNone stores entries as is.
	CodecNone Codec = iota
	// CodecLZ4 stores entries as lz4 frames. Fast, modest ratio.
	CodecLZ4
	// CodecZstd stores entries as zstd frames. Better ratio for scene text.
	CodecZstd
)

// String returns the codec name used by ParseCodec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", int(c))
	}
}

// ParseCodec returns the codec named s ("none", "lz4" or "zstd").
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("unknown cache codec %q", s)
	}
}

// suffix marks compressed files so switching codecs never misreads
// existing entries.
func (c Codec) suffix() string {
	switch c {
	case CodecLZ4:
		return lz4Suffix
	case CodecZstd:
		return zstdSuffix
	default:
		return ""
	}
}

func (c Codec) valid() bool {
	return c >= CodecNone && c <= CodecZstd
}

func (c Codec) encode(w io.Writer, data []byte) error {
	switch c {
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("lz4 write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("lz4 close: %w", err)
		}
		return nil
	case CodecZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return err
		}
		_, err = w.Write(enc.EncodeAll(data, nil))
		return err
	default:
		_, err := w.Write(data)
		return err
	}
}

func (c Codec) decode(raw []byte) ([]byte, error) {
	switch c {
	case CodecLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(raw)))
	case CodecZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(raw, nil)
	default:
		return raw, nil
	}
}

// The zstd encoder and decoder are shared; EncodeAll and DecodeAll are safe
// for concurrent use.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)
