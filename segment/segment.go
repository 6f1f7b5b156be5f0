// Package segment writes and reads the forward index file of one index
// segment. A segment file holds every forward-indexed field of the
// segment: its term strings in compressed blocks, the four term order
// arrays and the term ids of every document.
//
// Term ids are local to a segment and follow the byte order of the term
// strings. The integrated package merges them into one global term space.
package segment

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/cache"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/resource"
)

// DefaultTermBlockSize is the uncompressed size a term block is filled to.
const DefaultTermBlockSize = 64 << 10

var (
	ErrFormat          = errs.ErrFormat
	ErrInvalidArgument = errs.ErrInvalidArgument
	ErrClosed          = errs.ErrClosed

	ErrInvalidMagic   = fmt.Errorf("%w: invalid magic number", errs.ErrFormat)
	ErrInvalidVersion = fmt.Errorf("%w: unsupported version", errs.ErrFormat)
	ErrChecksum       = fmt.Errorf("%w: checksum mismatch", errs.ErrFormat)
)

// Option configures a Builder or a Reader.
type Option func(*options)

type options struct {
	collators     *collation.Collators
	compression   Compression
	termBlockSize int
	cache         cache.BlockCache
	rc            *resource.Controller
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		collators:     collation.Default(),
		compression:   CompressionLZ4,
		termBlockSize: DefaultTermBlockSize,
		logger:        slog.New(slog.DiscardHandler),
	}
}

// WithCollators sets the collators the term orders are computed with.
func WithCollators(c *collation.Collators) Option {
	return func(o *options) {
		if c != nil {
			o.collators = c
		}
	}
}

// WithCompression sets the term block compression of new files.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithTermBlockSize sets the uncompressed term block size of new files.
func WithTermBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.termBlockSize = n
		}
	}
}

// WithBlockCache caches decompressed term blocks across readers.
func WithBlockCache(c cache.BlockCache) Option {
	return func(o *options) { o.cache = c }
}

// WithResourceController paces blob reads through rc.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
