package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compressed stores resources zstd-compressed in the wrapped backend.
// Uncompressed resources written before compression was enabled still read back.
type Compressed struct {
	Backend
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCompressed wraps b.
func NewCompressed(b Backend) (*Compressed, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Compressed{Backend: b, enc: enc, dec: dec}, nil
}

func (c *Compressed) WriteAtomic(ctx context.Context, p string, data []byte) error {
	return c.Backend.WriteAtomic(ctx, p, c.enc.EncodeAll(data, nil))
}

func (c *Compressed) Read(ctx context.Context, p string) ([]byte, error) {
	raw, err := c.Backend.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		return raw, nil
	}
	out, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", p, err)
	}
	return out, nil
}

func (c *Compressed) Close() error {
	c.enc.Close()
	c.dec.Close()
	return c.Backend.Close()
}
