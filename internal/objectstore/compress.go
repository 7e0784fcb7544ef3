package objectstore

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressor lazily builds and reuses the zstd encoder/decoder pair, since
// construction allocates worker goroutines and is meant to be amortized
// across many Put/Get calls.
type compressor struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (c *compressor) init() {
	c.once.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			c.err = fmt.Errorf("objectstore: build zstd encoder: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			c.err = fmt.Errorf("objectstore: build zstd decoder: %w", err)
			return
		}
		c.enc, c.dec = enc, dec
	})
}

func (c *compressor) compress(data []byte) ([]byte, error) {
	c.init()
	if c.err != nil {
		return nil, c.err
	}
	return c.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c *compressor) decompress(data []byte) ([]byte, error) {
	c.init()
	if c.err != nil {
		return nil, c.err
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: zstd decode: %w", err)
	}
	return out, nil
}
