// Package mmap provides read-only memory mappings of whole files and of
// byte ranges within a file.
//
// A [Mapping] owns its memory: slices returned by [Mapping.Bytes] are only
// valid until [Mapping.Close]. Range mappings are aligned down to the
// platform's mapping granularity internally; callers always see exactly the
// bytes they asked for.
package mmap
