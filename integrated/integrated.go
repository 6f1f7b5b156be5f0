// Package integrated serves forward indexes stored inside index segments.
//
// Every segment file numbers its terms on its own. When a field is first
// used, the segments' term iterators are merged into one global term
// space with valid sensitive and insensitive sort positions, and every
// local id is mapped to its global id. Documents are addressed by global
// doc id: the doc base of their segment plus their local doc id.
//
//	set, err := integrated.Open(ctx, store, []string{"seg-0", "seg-1"})
//	...
//	defer set.Close()
//	word := set.Field("contents%word")
//	parts, err := word.RetrieveParts(doc, []int{10}, []int{20})
package integrated

import (
	"log/slog"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/resource"
)

// DefaultBlockCacheSize is the byte capacity of the term block cache
// shared by the segments of a Set.
const DefaultBlockCacheSize = 64 << 20

var (
	ErrClosed          = errs.ErrClosed
	ErrInvalidArgument = errs.ErrInvalidArgument
	ErrFormat          = errs.ErrFormat
	ErrReadOnly        = errs.ErrReadOnly
)

// Option configures a Set.
type Option func(*options)

type options struct {
	collators  *collation.Collators
	cacheBytes int64
	rc         *resource.Controller
	fields     []string
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		collators:  collation.Default(),
		cacheBytes: DefaultBlockCacheSize,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithCollators sets the collators used to merge term spaces. They must be
// the collators the segments were written with.
func WithCollators(c *collation.Collators) Option {
	return func(o *options) {
		if c != nil {
			o.collators = c
		}
	}
}

// WithBlockCacheSize sets the capacity of the shared term block cache.
// Zero disables caching.
func WithBlockCacheSize(bytes int64) Option {
	return func(o *options) {
		if bytes >= 0 {
			o.cacheBytes = bytes
		}
	}
}

// WithResourceController paces segment reads and accounts cached blocks.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithFields merges the term spaces of the named fields during Open
// instead of on first use.
func WithFields(names ...string) Option {
	return func(o *options) { o.fields = append(o.fields, names...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
