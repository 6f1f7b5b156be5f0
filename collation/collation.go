// Package collation builds the collators that order and compare terms.
//
// Every forward index compares terms under two sensitivities: sensitive
// (case and diacritics matter) and insensitive (both are folded). The
// insensitive behaviour is versioned because it is baked into on-disk sort
// orders: V1 treats spaces and punctuation such as dashes as ignorable, so
// "co-operate" equals "cooperate"; V2 keeps them significant. Indexes
// written with one version must be read with the same one.
package collation

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrUnsupportedConfiguration is returned for sensitivity combinations that
// have no collator.
var ErrUnsupportedConfiguration = errors.New("collation: unsupported configuration")

// Version selects the insensitive collator behaviour.
type Version int

const (
	// V1 ignores spaces and punctuation when comparing insensitively.
	V1 Version = 1
	// V2 keeps spaces and punctuation significant. Current default.
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "V1"
	case V2:
		return "V2"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// Sensitivity describes whether comparisons consider case and diacritics.
type Sensitivity int

const (
	// Sensitive distinguishes both case and diacritics.
	Sensitive Sensitivity = iota
	// Insensitive folds both case and diacritics.
	Insensitive
	// CaseInsensitive folds case but distinguishes diacritics.
	CaseInsensitive
	// DiacriticsInsensitive folds diacritics but distinguishes case.
	DiacriticsInsensitive
)

func (s Sensitivity) String() string {
	switch s {
	case Sensitive:
		return "sensitive"
	case Insensitive:
		return "insensitive"
	case CaseInsensitive:
		return "case-insensitive"
	case DiacriticsInsensitive:
		return "diacritics-insensitive"
	default:
		return fmt.Sprintf("Sensitivity(%d)", int(s))
	}
}

// CaseSensitive reports whether s distinguishes upper and lower case.
func (s Sensitivity) CaseSensitive() bool {
	return s == Sensitive || s == DiacriticsInsensitive
}

// DiacriticsSensitive reports whether s distinguishes accented letters.
func (s Sensitivity) DiacriticsSensitive() bool {
	return s == Sensitive || s == CaseInsensitive
}

// Collators holds the sensitive and insensitive collator for one locale
// and version. It is safe for concurrent use.
type Collators struct {
	tag         language.Tag
	version     Version
	sensitive   *Collator
	insensitive *Collator
}

// New returns the collators for tag at the given version.
func New(tag language.Tag, version Version) (*Collators, error) {
	if version != V1 && version != V2 {
		return nil, fmt.Errorf("%w: unknown collator version %d", ErrUnsupportedConfiguration, int(version))
	}

	insensitiveTag := tag
	if version == V1 {
		shifted, err := tag.SetTypeForKey("ka", "shifted")
		if err != nil {
			return nil, fmt.Errorf("collation: %w", err)
		}
		insensitiveTag = shifted
	}

	return &Collators{
		tag:         tag,
		version:     version,
		sensitive:   newCollator(tag),
		insensitive: newCollator(insensitiveTag, collate.Loose),
	}, nil
}

// Default returns the English collators at the current version.
func Default() *Collators {
	c, _ := New(language.English, V2)
	return c
}

// Must is like New but panics on error.
func Must(tag language.Tag, version Version) *Collators {
	c, err := New(tag, version)
	if err != nil {
		panic(err)
	}
	return c
}

// Tag returns the locale of the collators.
func (c *Collators) Tag() language.Tag { return c.tag }

// Version returns the collator version.
func (c *Collators) Version() Version { return c.version }

// Sensitive returns the collator that distinguishes case and diacritics.
func (c *Collators) Sensitive() *Collator { return c.sensitive }

// Insensitive returns the collator that folds case and diacritics.
func (c *Collators) Insensitive() *Collator { return c.insensitive }

// Get returns the collator for s. Case and diacritics sensitivity must
// agree; mixed settings fail with ErrUnsupportedConfiguration.
func (c *Collators) Get(s Sensitivity) (*Collator, error) {
	switch s {
	case Sensitive:
		return c.sensitive, nil
	case Insensitive:
		return c.insensitive, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfiguration, s)
	}
}

// Collator compares strings under one sensitivity. Unlike collate.Collator
// it is safe for concurrent use.
type Collator struct {
	pool sync.Pool
}

type pooled struct {
	c   *collate.Collator
	buf collate.Buffer
}

func newCollator(tag language.Tag, opts ...collate.Option) *Collator {
	c := &Collator{}
	c.pool.New = func() any {
		return &pooled{c: collate.New(tag, opts...)}
	}
	return c
}

// Compare returns -1, 0 or 1 depending on the collation order of a and b.
func (c *Collator) Compare(a, b string) int {
	p := c.pool.Get().(*pooled)
	defer c.pool.Put(p)
	return p.c.CompareString(a, b)
}

// Equal reports whether a and b collate equal.
func (c *Collator) Equal(a, b string) bool {
	return c.Compare(a, b) == 0
}

// Key returns the collation key of s. Keys compare bytewise in the same
// order as Compare.
func (c *Collator) Key(s string) []byte {
	p := c.pool.Get().(*pooled)
	defer c.pool.Put(p)

	k := p.c.KeyFromString(&p.buf, s)
	out := make([]byte, len(k))
	copy(out, k)
	p.buf.Reset()
	return out
}
