package snapshot

import (
	"time"

	"github.com/hupe1980/mmarray/codec"
	"github.com/hupe1980/mmarray/internal/resource"
)

// DefaultChunkSize is the number of file bytes handed to the compressor at a time.
const DefaultChunkSize = 1 << 20

// Options configures Write, Read and Prune.
type Options struct {
	// Compression of the data blob. Default: CompressionZstd.
	Compression Compression
	// Codec encodes manifests. Default: codec.Default.
	Codec codec.Codec
	// Retain keeps only the newest Retain snapshots after a write. 0 keeps all.
	Retain int
	// Resources limits transfer slots, chunk memory and throughput. May be nil.
	Resources *resource.Controller
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	// PruneConcurrency bounds parallel deletes. Default: 4.
	PruneConcurrency int
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Compression == "" {
		o.Compression = CompressionZstd
	}
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.PruneConcurrency <= 0 {
		o.PruneConcurrency = 4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
