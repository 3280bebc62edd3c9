// Package outlier flags samples of an identity whose Euclidean distance from
// the identity's mean or median reference vector exceeds a threshold.
package outlier
