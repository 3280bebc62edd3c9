// Package photos discovers identity photos on disk and watches directories
// for newly arriving files.
//
// Photo files are named <identity>_<anything>.<jpg|png>; the identity is
// the file stem up to the first underscore.
package photos
