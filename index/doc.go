// Package index defines the nearest-neighbour abstraction used to match a
// probe embedding against per-identity reference vectors. The bruteforce
// implementation is exact and linear; cover prunes with a cover tree.
package index
