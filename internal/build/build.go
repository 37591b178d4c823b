// Package build carries version information stamped in at link time.
package build

// Version is overridden by the release build with
// -ldflags "-X github.com/drummonds/godocx/internal/build.Version=v1.2.3"
var Version = "dev"
