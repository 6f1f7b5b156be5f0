// Package resource bounds the work the forward index does in the
// background: how many annotation indexes initialize at once, how much
// memory cached blocks may pin, and how fast segment files are read.
//
// A single Controller is meant to be shared by every forward index in a
// process.
package resource
