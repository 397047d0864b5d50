// Package persistence provides the low-level building blocks for the index
// artifact format: CRC32 integrity checks and the payload compression codec.
//
// CRC32 (IEEE polynomial) detects accidental storage corruption; it is not
// cryptographically secure and must not be used for tamper detection.
package persistence
