// Package hash provides the CRC32-Castagnoli checksum used to verify
// segment forward index files.
package hash
