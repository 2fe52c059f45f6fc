package contracts

import (
	"runtime"
	"runtime/debug"
)

// Version is the release of the binaries and their contracts
const Version = "1.0.0"

// APIVersion is the version of the HTTP and WebSocket contracts
const APIVersion = "v1"

// BuildInfo describes the running binary
type BuildInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	Revision   string `json:"revision,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	Modified   bool   `json:"modified,omitempty"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// ReadBuildInfo reports the version together with the VCS stamp the go tool
// embeds at build time. Revision is empty for test binaries and `go run`.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:    Version,
		APIVersion: APIVersion,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			info.CommitTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String renders the version line printed by the binaries
func (b BuildInfo) String() string {
	s := "allocator " + b.Version
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		s += " (" + rev
		if b.Modified {
			s += ", modified"
		}
		s += ")"
	}
	return s + " " + b.GoVersion + " " + b.Platform
}
