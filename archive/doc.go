// Package archive moves feature records in and out of a store as
// zstd-compressed JSON lines and reads the JSON lines emitted by an
// external face encoder.
package archive
