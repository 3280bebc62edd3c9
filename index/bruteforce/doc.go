// Package bruteforce provides an exact linear-scan L2 index. It is the
// baseline the cover tree index is checked against.
package bruteforce
