// Package textutil provides filename sanitization and the string matching
// modes used by transfer search.
package textutil
