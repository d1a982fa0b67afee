package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	settings := func(kv ...string) []debug.BuildSetting {
		var out []debug.BuildSetting
		for i := 0; i+1 < len(kv); i += 2 {
			out = append(out, debug.BuildSetting{Key: kv[i], Value: kv[i+1]})
		}
		return out
	}

	tests := []struct {
		name        string
		version     string
		commit      string
		info        debug.BuildInfo
		wantVersion string
		wantCommit  string
	}{
		{
			name:        "ldflags win",
			version:     "v1.0.0",
			commit:      "abc1234",
			info:        debug.BuildInfo{Main: debug.Module{Version: "v0.9.0"}, Settings: settings("vcs.revision", "ffffffffff")},
			wantVersion: "v1.0.0",
			wantCommit:  "abc1234",
		},
		{
			name:        "module version",
			info:        debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}},
			wantVersion: "v0.3.1",
		},
		{
			name:       "devel build from checkout",
			info:       debug.BuildInfo{Main: debug.Module{Version: "(devel)"}, Settings: settings("vcs.revision", "0123456789abcdef", "vcs.modified", "false")},
			wantCommit: "0123456",
		},
		{
			name:       "dirty tree",
			info:       debug.BuildInfo{Settings: settings("vcs.revision", "0123456789abcdef", "vcs.modified", "true")},
			wantCommit: "0123456-dirty",
		},
		{
			name:       "dirty without revision",
			info:       debug.BuildInfo{Settings: settings("vcs.modified", "true")},
			wantCommit: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := resolve(tt.version, tt.commit, &tt.info)
			if v != tt.wantVersion || c != tt.wantCommit {
				t.Errorf("resolve() = %q, %q; want %q, %q", v, c, tt.wantVersion, tt.wantCommit)
			}
		})
	}
}

func TestServerHeader(t *testing.T) {
	h := ServerHeader()
	if !strings.Contains(h, " UPnP/1.0 smartrelay/"+Version) {
		t.Errorf("ServerHeader() = %q", h)
	}
}

func TestFull(t *testing.T) {
	if got := Full(); got != Version+" (commit: "+Commit+")" {
		t.Errorf("Full() = %q", got)
	}
}
