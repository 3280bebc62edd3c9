// Package cover implements index.Index on top of an L2 cover tree.
package cover
