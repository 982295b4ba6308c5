package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/zowe"

// buildVersion is set with -ldflags "-X pkt.systems/zowe/internal/version.buildVersion=v1.2.3".
var buildVersion = ""

// Details describes the running zowe binary for `zowe version --long`.
type Details struct {
	Module    string
	Version   string
	GoVersion string
	Revision  string
	Built     time.Time
}

// Current returns the release version without the +dirty suffix.
func Current() string {
	return currentFromBuildInfo(false)
}

// CurrentWithDirty returns the release version, marked +dirty when the binary
// was built from a modified checkout.
func CurrentWithDirty() string {
	return currentFromBuildInfo(true)
}

// Module returns the module path from build info when available.
func Module() string {
	info, ok := debug.ReadBuildInfo()
	if ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// Read collects the build details of the running binary.
func Read() Details {
	d := Details{
		Module:    Module(),
		Version:   CurrentWithDirty(),
		GoVersion: runtime.Version(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		vcs := readVCS(info)
		d.Revision = vcs.revision
		d.Built = vcs.time
	}
	return d
}

func currentFromBuildInfo(includeDirty bool) string {
	if strings.TrimSpace(buildVersion) != "" {
		return normalizeVersion(buildVersion, includeDirty)
	}
	info, ok := debug.ReadBuildInfo()
	if ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return normalizeVersion(v, includeDirty)
		}
		if v := pseudoFromBuildInfo(info, includeDirty); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func normalizeVersion(v string, includeDirty bool) string {
	value := strings.TrimSpace(v)
	if includeDirty {
		return value
	}
	return strings.TrimSuffix(value, "+dirty")
}

type vcsInfo struct {
	revision string
	time     time.Time
	modified bool
}

// readVCS extracts the vcs.* stamps. A malformed vcs.time is left zero.
func readVCS(info *debug.BuildInfo) vcsInfo {
	var v vcsInfo
	if info == nil {
		return v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			v.revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				v.time = parsed.UTC()
			}
		case "vcs.modified":
			v.modified = setting.Value == "true"
		}
	}
	return v
}

func pseudoFromBuildInfo(info *debug.BuildInfo, includeDirty bool) string {
	vcs := readVCS(info)
	if vcs.revision == "" || vcs.time.IsZero() {
		return ""
	}
	rev := vcs.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	ver := "v0.0.0-" + vcs.time.Format("20060102150405") + "-" + rev
	if vcs.modified && includeDirty {
		ver += "+dirty"
	}
	return ver
}
