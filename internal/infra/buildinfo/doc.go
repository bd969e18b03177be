// Package buildinfo provides build information for KeyDesk binaries.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X .../buildinfo.Version=1.0.0 -X .../buildinfo.Commit=abc123"
//
// The Go version is read from the runtime.
package buildinfo
