// Package engine provides helpers for working with the modernc.org/sqlite
// driver in this module: opening connections, applying connection pragmas and
// registering SQL scalar functions over stored feature vectors. It keeps a
// thin surface so other packages can share the same driver instance.
package engine
