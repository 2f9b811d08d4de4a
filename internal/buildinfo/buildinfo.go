// Package buildinfo carries version metadata injected at link time.
package buildinfo

// Set via -ldflags "-X github.com/nghyane/msgproxy/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
