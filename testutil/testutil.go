package testutil

import (
	"math"
	"math/rand"
	"strings"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Zipf returns a Zipfian-distributed value in [0, n).
// P(k) ∝ 1/k^s where s is the skew parameter; s=1.0 is close to the term
// frequencies of natural language.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

var (
	onsets = []string{"b", "d", "f", "k", "l", "m", "p", "r", "s", "t", "v", "z"}
	nuclei = []string{"a", "e", "i", "o", "u", "é", "ö"}
)

// Vocabulary returns n distinct terms. Every third term is a capitalized
// copy of an earlier one and every seventh carries a diacritic, so many
// terms share an insensitive sort position.
func Vocabulary(n int) []string {
	vocab := make([]string, 0, n)
	seen := make(map[string]bool, n)
	add := func(s string) {
		if len(vocab) < n && !seen[s] {
			seen[s] = true
			vocab = append(vocab, s)
		}
	}

	for i := 0; len(vocab) < n; i++ {
		w := word(i)
		add(w)
		if i%3 == 0 {
			add(strings.ToUpper(w[:1]) + w[1:])
		}
		if i%7 == 0 {
			add(strings.Replace(w, "e", "ë", 1))
		}
	}
	return vocab
}

// word spells i in syllables; distinct i give distinct words.
func word(i int) string {
	var b strings.Builder
	for {
		b.WriteString(onsets[i%len(onsets)])
		i /= len(onsets)
		b.WriteString(nuclei[i%len(nuclei)])
		i /= len(nuclei)
		if i == 0 {
			break
		}
		i--
	}
	return b.String()
}

// Document returns between 1 and maxLen Zipf-distributed terms of vocab
// followed by the closing empty token.
func (r *RNG) Document(vocab []string, maxLen int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 1 + r.rand.Intn(maxLen)
	doc := make([]string, n+1)
	for i := range n {
		doc[i] = vocab[r.zipfLocked(len(vocab), 1.0)]
	}
	return doc
}

// Corpus returns docs documents of Document.
func (r *RNG) Corpus(vocab []string, docs, maxLen int) [][]string {
	out := make([][]string, docs)
	for i := range out {
		out[i] = r.Document(vocab, maxLen)
	}
	return out
}

// Increments returns position increments for n tokens: mostly 1, with an
// occasional 0 (a token stacked on the previous one) or 2 (a gap). The
// first increment is always 1.
func (r *RNG) Increments(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	incs := make([]int, n)
	for i := range incs {
		switch p := r.rand.Intn(10); {
		case i == 0 || p > 1:
			incs[i] = 1
		case p == 0:
			incs[i] = 0
		default:
			incs[i] = 2
		}
	}
	return incs
}

// Expand applies increments to tokens the way forward indexes store them:
// a token with increment 0 is dropped and an increment above 1 leaves
// gap positions filled with gap.
func Expand(tokens []string, increments []int, gap string) []string {
	if increments == nil {
		return tokens
	}
	var out []string
	for i, t := range tokens {
		if increments[i] == 0 {
			continue
		}
		for range increments[i] - 1 {
			out = append(out, gap)
		}
		out = append(out, t)
	}
	return out
}
