// Package vector holds the numeric routines used over face feature vectors:
//   - coordinate-wise Mean and Median over equal-length vectors
//   - Euclidean (L2) distance
//   - the BLOB encoding used to persist vectors in SQLite
//
// All functions are pure and never mutate their inputs.
package vector
