// Package external implements the forward index of one annotation stored
// in its own directory:
//
//	version.dat  format marker ("fi||5")
//	terms.dat    term dictionary
//	docs.dat     table of contents: one (offset, length, deleted) entry per fiid
//	tokens.dat   flat big-endian int32 array of term ids
//
// A Writer appends, deletes and reuses space; a Reader serves concurrent
// snippet retrieval from read-only memory mappings of the tokens file.
package external

import (
	"log/slog"
	"path/filepath"

	"golang.org/x/text/language"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/fs"
	"github.com/hupe1980/forwardindex/terms"
)

const (
	termsFile  = "terms.dat"
	tocFile    = "docs.dat"
	tokensFile = "tokens.dat"

	sizeofInt = 4

	// DefaultChunkSize is the largest tokens file region mapped at once.
	DefaultChunkSize = 1 << 30

	// DefaultWriteReserve is the number of ints the tokens file grows by
	// beyond what a write at the end of the file needs.
	DefaultWriteReserve = 250_000
)

var (
	ErrClosed          = errs.ErrClosed
	ErrInvalidArgument = errs.ErrInvalidArgument
	ErrFormat          = errs.ErrFormat
	ErrReadOnly        = errs.ErrReadOnly
)

// Option configures an external forward index.
type Option func(*options)

type options struct {
	fs            fs.FileSystem
	language      language.Tag
	chunkSize     int64
	writeReserve  int64
	termBlockSize int
	trie          bool
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		fs:            fs.Default,
		language:      language.English,
		chunkSize:     DefaultChunkSize,
		writeReserve:  DefaultWriteReserve,
		termBlockSize: terms.DefaultMaxBlockSize,
		trie:          true,
		logger:        slog.New(slog.DiscardHandler),
	}
}

// WithFileSystem sets the file system for docs.dat, terms.dat and writes
// to tokens.dat. Read-only mappings always go through the OS.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// WithLanguage sets the collation locale. Defaults to English.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) { o.language = tag }
}

// WithChunkSize sets the largest tokens file region a reader maps at once,
// in bytes. No single document may be larger.
func WithChunkSize(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.chunkSize = bytes
		}
	}
}

// WithWriteReserve sets how many ints the tokens file is grown by beyond
// the needs of an append.
func WithWriteReserve(ints int64) Option {
	return func(o *options) {
		if ints >= 0 {
			o.writeReserve = ints
		}
	}
}

// WithTermBlockSize bounds the bytes per block in terms.dat.
func WithTermBlockSize(bytes int) Option {
	return func(o *options) {
		if bytes > 0 {
			o.termBlockSize = bytes
		}
	}
}

// WithoutTrie disables the exact-match trie of the loaded dictionary.
func WithoutTrie() Option {
	return func(o *options) { o.trie = false }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type paths struct {
	dir    string
	terms  string
	toc    string
	tokens string
}

func newPaths(dir string) paths {
	return paths{
		dir:    dir,
		terms:  filepath.Join(dir, termsFile),
		toc:    filepath.Join(dir, tocFile),
		tokens: filepath.Join(dir, tokensFile),
	}
}

func (o *options) collators(v collation.Version) (*collation.Collators, error) {
	return collation.New(o.language, v)
}
