package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm a Compressed store applies to values.
// The tag is stored as the first byte of every value, so a store can read
// back values written under a different setting.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// ErrCorrupt is returned when a stored value does not carry a valid
// compression tag.
var ErrCorrupt = errors.New("corrupt compressed value")

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration value to a Compression. The empty
// string means no compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Compressed wraps a Store, compressing values on Put and decompressing them
// on Get. Keys are passed through untouched.
type Compressed struct {
	delegate Store
	algo     Compression

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewCompressed(delegate Store, algo Compression) (*Compressed, error) {
	// Both are safe for concurrent use via EncodeAll/DecodeAll.
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Compressed{
		delegate: delegate,
		algo:     algo,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

func (s *Compressed) Put(key, value []byte) error {
	packed, err := s.compress(value)
	if err != nil {
		return fmt.Errorf("could not compress %.10x with %v: %w", key, s.algo, err)
	}
	return s.delegate.Put(key, packed)
}

func (s *Compressed) Get(key []byte) ([]byte, error) {
	packed, err := s.delegate.Get(key)
	if err != nil {
		return nil, err
	}
	value, err := s.decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("%.10x: %w", key, err)
	}
	return value, nil
}

func (s *Compressed) compress(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return []byte{byte(CompressionNone)}, nil
	}
	out := []byte{byte(s.algo)}
	switch s.algo {
	case CompressionNone:
		return append(out, value...), nil
	case CompressionZstd:
		return s.encoder.EncodeAll(value, out), nil
	case CompressionLZ4:
		buf := bytes.NewBuffer(out)
		zw := lz4.NewWriter(buf)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %v", s.algo)
	}
}

func (s *Compressed) decompress(packed []byte) ([]byte, error) {
	if len(packed) == 0 {
		return nil, ErrCorrupt
	}
	tag, body := Compression(packed[0]), packed[1:]
	switch tag {
	case CompressionNone:
		return dup(body), nil
	case CompressionZstd:
		value, err := s.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, err
		}
		return dup(value), nil
	case CompressionLZ4:
		value, err := ioutil.ReadAll(lz4.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, err
		}
		return dup(value), nil
	default:
		return nil, fmt.Errorf("tag %d: %w", tag, ErrCorrupt)
	}
}
