// Package aggregate ingests per-photo feature vectors of one identity into a
// feature.Store: samples are flushed in bounded groups, then the mean and
// median of every stored sample are appended. Per-photo failures are
// recorded in the returned Summary and never abort the identity.
package aggregate
