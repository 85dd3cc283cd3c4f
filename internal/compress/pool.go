package compress

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DecompressPool keeps reusable zstd decoders for dictionary-free streams.
type DecompressPool struct {
	pool             *sync.Pool
	maxDecoderMemory uint64
	concurrency      int
	lowmem           bool
}

// PoolOption configures a DecompressPool.
type PoolOption func(*DecompressPool)

// WithDecoderConcurrency sets decoder concurrency. Zero lets zstd pick.
func WithDecoderConcurrency(n int) PoolOption {
	return func(p *DecompressPool) {
		if n < 0 {
			n = 0
		}
		p.concurrency = n
	}
}

// WithDecoderLowmem toggles low-memory decoding.
func WithDecoderLowmem(b bool) PoolOption {
	return func(p *DecompressPool) {
		p.lowmem = b
	}
}

// NewDecompressPool creates a decoder pool. A maxMemory of 0 applies no
// limit.
func NewDecompressPool(maxMemory uint64, opts ...PoolOption) *DecompressPool {
	p := &DecompressPool{
		maxDecoderMemory: maxMemory,
		concurrency:      1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pool = &sync.Pool{
		New: func() any {
			dec, err := p.newDecoder(nil)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	return p
}

// Get returns a decoder reading from r and a release function that must
// be called when done.
func (p *DecompressPool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}
	if err := dec.Reset(r); err != nil {
		dec.Close()
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}
	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

func (p *DecompressPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(p.concurrency),
		zstd.WithDecoderLowmem(p.lowmem),
	}
	if p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}
