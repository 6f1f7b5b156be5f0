// Package testutil provides testing utilities for forward indexes.
//
// This package is intended for use in tests and benchmarks only.
// It generates reproducible vocabularies and documents whose terms
// collide under the insensitive collator, so that merges and sort
// positions see case and diacritics variants.
//
//	rng := testutil.NewRNG(seed)
//	vocab := testutil.Vocabulary(200)
//	docs := rng.Corpus(vocab, 50, 40)
package testutil
