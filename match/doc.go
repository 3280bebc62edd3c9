// Package match identifies a probe embedding by searching the latest Mean or
// Median of every stored identity.
package match
