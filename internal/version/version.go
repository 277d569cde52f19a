// Package version exposes the Automn host build version.
package version

// Version is the host's own version, overridable at link time with
// -ldflags "-X .../internal/version.Version=...".
var Version = "1.4.0"
