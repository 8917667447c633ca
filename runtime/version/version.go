// Package version reports the convostream build version.
// The variables below can be set at build time:
//
//	go build -ldflags "-X github.com/AltairaLabs/convostream/runtime/version.version=1.0.0"
package version

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/AltairaLabs/convostream/runtime/logger"
)

const (
	devVersion     = "dev"
	shortCommitLen = 7
	vcsRevisionKey = "vcs.revision"
	vcsModifiedKey = "vcs.modified"
)

// Set with -ldflags.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// Info describes the running build.
type Info struct {
	Version string
	Commit  string
	Dirty   bool
	Built   string
}

// Get returns the build info. Values missing from ldflags fall back to the
// module build info embedded by the Go toolchain.
func Get() Info {
	info := Info{Version: version, Commit: gitCommit, Built: buildDate}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == devVersion && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if info.Commit != "" {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case vcsRevisionKey:
			info.Commit = s.Value[:min(shortCommitLen, len(s.Value))]
		case vcsModifiedKey:
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// String renders the info for `convostream version`.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "convostream version %s", i.Version)
	if i.Commit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", i.Commit)
		if i.Dirty {
			b.WriteString(" (dirty)")
		}
	}
	if i.Built != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", i.Built)
	}
	return b.String()
}

// Attrs returns the info as slog key-value pairs.
func (i Info) Attrs() []any {
	attrs := []any{"version", i.Version}
	if i.Commit != "" {
		attrs = append(attrs, "commit", i.Commit)
	}
	if i.Dirty {
		attrs = append(attrs, "dirty", true)
	}
	if i.Built != "" {
		attrs = append(attrs, "built", i.Built)
	}
	return attrs
}

// LogStartup logs the build info at debug level.
func LogStartup(ctx context.Context) {
	logger.DebugContext(ctx, "convostream starting", Get().Attrs()...)
}
