package forwardindex

import (
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/config"
	"github.com/hupe1980/forwardindex/external"
	"github.com/hupe1980/forwardindex/integrated"
	"github.com/hupe1980/forwardindex/internal/fs"
	"github.com/hupe1980/forwardindex/internal/resource"
	"github.com/hupe1980/forwardindex/segment"
)

type options struct {
	logger           *Logger
	metrics          MetricsObserver
	background       bool
	workers          int
	ioLimit          int64
	language         language.Tag
	chunkSize        int64
	writeReserve     int64
	termBlockSize    int
	trie             bool
	fs               fs.FileSystem
	blockCacheSize   int64
	compression      segment.Compression
	segmentBlockSize int
	rc               *resource.Controller
}

// Option configures a ForwardIndex.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := forwardindex.NewJSONLogger(slog.LevelInfo)
//	fi, _ := forwardindex.Open(dir, "contents", annotations, forwardindex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsObserver enables metrics collection.
//
// Example:
//
//	metrics := &forwardindex.BasicMetricsObserver{}
//	fi, _ := forwardindex.Open(dir, "contents", annotations, forwardindex.WithMetricsObserver(metrics))
//	// ... use fi ...
//	stats := metrics.GetStats()
func WithMetricsObserver(m MetricsObserver) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsObserver{}
		}
		o.metrics = m
	}
}

// WithBackgroundWorkers sets how many annotation indexes initialize at
// once after opening.
func WithBackgroundWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithoutBackgroundInit disables initialization at open time. Every
// annotation index then initializes on first use.
func WithoutBackgroundInit() Option {
	return func(o *options) { o.background = false }
}

// WithIOLimit caps the read throughput of segment files in bytes per
// second.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		if bytesPerSec >= 0 {
			o.ioLimit = bytesPerSec
		}
	}
}

// WithLanguage sets the collation locale of new and opened indexes.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) { o.language = tag }
}

// WithChunkSize sets the largest tokens file region mapped at once.
func WithChunkSize(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.chunkSize = bytes
		}
	}
}

// WithWriteReserve sets how many ints a tokens file grows by beyond the
// needs of an append.
func WithWriteReserve(ints int64) Option {
	return func(o *options) {
		if ints >= 0 {
			o.writeReserve = ints
		}
	}
}

// WithFileSystem sets the file system of external indexes.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithBlockCacheSize sets the term block cache capacity of segment-backed
// indexes. Zero disables it.
func WithBlockCacheSize(bytes int64) Option {
	return func(o *options) {
		if bytes >= 0 {
			o.blockCacheSize = bytes
		}
	}
}

// WithConfig applies a loaded configuration file. Options after it
// override its values.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		o.language = cfg.LanguageTag()
		o.background = !cfg.Background.Disabled
		if cfg.Background.Workers > 0 {
			o.workers = cfg.Background.Workers
		}
		o.chunkSize = cfg.External.ChunkSize
		o.writeReserve = cfg.External.WriteReserve
		o.termBlockSize = cfg.External.TermBlockSize
		o.trie = !cfg.External.DisableTrie
		o.blockCacheSize = cfg.Integrated.BlockCacheSize
		o.ioLimit = cfg.Integrated.IOLimitBytesPerSec
		if c, err := segment.ParseCompression(cfg.Integrated.Compression); err == nil {
			o.compression = c
		}
		o.segmentBlockSize = cfg.Integrated.TermBlockSize
		o.logger = loggerFromConfig(cfg.Logging)
	}
}

func loggerFromConfig(c config.LoggingConfig) *Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	if strings.EqualFold(c.Format, "json") {
		return NewJSONLogger(level)
	}
	return NewTextLogger(level)
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metrics:          NoopMetricsObserver{},
		background:       true,
		workers:          2,
		language:         language.English,
		chunkSize:        external.DefaultChunkSize,
		writeReserve:     external.DefaultWriteReserve,
		trie:             true,
		fs:               fs.Default,
		blockCacheSize:   integrated.DefaultBlockCacheSize,
		compression:      segment.CompressionLZ4,
		segmentBlockSize: segment.DefaultTermBlockSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	o.rc = resource.NewController(resource.Config{
		MaxBackgroundWorkers: int64(o.workers),
		IOLimitBytesPerSec:   o.ioLimit,
	})
	return o
}

// externalOptions translates the options for the external package.
func (o *options) externalOptions(annotation string) []external.Option {
	opts := []external.Option{
		external.WithFileSystem(o.fs),
		external.WithLanguage(o.language),
		external.WithChunkSize(o.chunkSize),
		external.WithWriteReserve(o.writeReserve),
		external.WithLogger(o.logger.WithAnnotation(annotation).Logger),
	}
	if o.termBlockSize > 0 {
		opts = append(opts, external.WithTermBlockSize(o.termBlockSize))
	}
	if !o.trie {
		opts = append(opts, external.WithoutTrie())
	}
	return opts
}

// collators returns the collators of the configured language.
func (o *options) collators() (*collation.Collators, error) {
	return collation.New(o.language, collation.V2)
}

// integratedOptions translates the options for the integrated package.
func (o *options) integratedOptions(c *collation.Collators) []integrated.Option {
	return []integrated.Option{
		integrated.WithCollators(c),
		integrated.WithBlockCacheSize(o.blockCacheSize),
		integrated.WithResourceController(o.rc),
		integrated.WithLogger(o.logger.Logger),
	}
}

// segmentOptions translates the options for new segment files.
func (o *options) segmentOptions(c *collation.Collators) []segment.Option {
	return []segment.Option{
		segment.WithCollators(c),
		segment.WithCompression(o.compression),
		segment.WithTermBlockSize(o.segmentBlockSize),
		segment.WithLogger(o.logger.Logger),
	}
}
