// Package conv provides checked integer conversions for values that cross
// the on-disk boundary (counts, offsets, lengths, term ids).
package conv
