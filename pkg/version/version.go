// Package version holds the identity constants stamped into compiled
// containers and reported by the tools.
package version

// Magic identifies a container file. The trailing NUL is part of the
// on-disk identifier.
const Magic = "svmo\x00"

// Number is the container format version. Readers accept exactly this value.
const Number uint32 = 26

// String is the human-readable release.
const String = "0.3.0-dev"
