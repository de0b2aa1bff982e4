// Package id provides unique ID generation utilities for Scholar-X.
//
// This package supports two ID generation strategies:
//   - UUID: Standard UUID v4 (random), used for chunk identifiers
//   - ULID: Universally Unique Lexicographically Sortable Identifier,
//     used for request and validation run identifiers
//
// Usage:
//
//	// Using default generators
//	chunkID := id.NewUUID() // e.g., "550e8400-e29b-41d4-a716-446655440000"
//	runID := id.NewULID()   // e.g., "01ARZ3NDEKTSV4RRFFQ69G5FAV"
//
//	// Using generator instances
//	gen := id.NewULIDGenerator()
//	ids := gen.GenerateN(10)
package id

import (
	"sync"
)

// Generator defines the interface for ID generators.
type Generator interface {
	// Generate creates a new unique ID.
	Generate() string

	// GenerateN creates n unique IDs.
	GenerateN(n int) []string
}

// Type represents the type of ID generator.
type Type string

const (
	// TypeUUID represents UUID v4 generator.
	TypeUUID Type = "uuid"

	// TypeULID represents ULID generator.
	TypeULID Type = "ulid"
)

var (
	defaultUUID Generator
	defaultULID Generator
	initOnce    sync.Once
)

// initDefaults initializes default generators.
func initDefaults() {
	initOnce.Do(func() {
		defaultUUID = NewUUIDGenerator()
		defaultULID = NewULIDGenerator()
	})
}

// NewUUID generates a new UUID v4 string.
func NewUUID() string {
	initDefaults()
	return defaultUUID.Generate()
}

// NewULID generates a new ULID string.
func NewULID() string {
	initDefaults()
	return defaultULID.Generate()
}

// New generates a new ID using the specified generator type.
func New(t Type) string {
	switch t {
	case TypeULID:
		return NewULID()
	default:
		return NewUUID()
	}
}
