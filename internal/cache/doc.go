// Package cache provides an LRU cache for decompressed segment term blocks.
//
// Memory held by the cache is accounted against a shared
// resource.Controller when one is supplied; if the controller refuses the
// reservation the block is simply not cached.
package cache
