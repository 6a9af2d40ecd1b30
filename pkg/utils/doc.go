// Package utils provides small helpers shared by the graph drivers, the
// embedding linker and the query servicer.
//
// This package contains:
//   - Vector math used for similarity linking and in-memory search (vector.go)
//   - Identifier validation for values interpolated into Cypher (validation.go)
package utils
