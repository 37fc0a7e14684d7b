// Package services holds the error markers shared by the engine, plugins, and
// workflow manager.
//
// Wrap tags a failure with a marker and the component/operation it came from.
// Summary strips the marker for the transfer's error string and Hint picks the
// error_hint logged next to it.
package services
