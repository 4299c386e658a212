package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFillFrom(t *testing.T) {
	defer func(v, c, d string) { Version, Commit, Date = v, c, d }(Version, Commit, Date)

	tests := []struct {
		name  string
		stamp [3]string
		info  debug.BuildInfo
		want  [3]string
	}{
		{
			name:  "go install",
			stamp: [3]string{"dev", "none", "unknown"},
			info: debug.BuildInfo{
				Main: debug.Module{Version: "v0.4.1"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef"},
					{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
				},
			},
			want: [3]string{"v0.4.1", "0123456", "2026-01-02T03:04:05Z"},
		},
		{
			name:  "ldflags win",
			stamp: [3]string{"v1.0.0", "feedbee", "today"},
			info: debug.BuildInfo{
				Main:     debug.Module{Version: "v0.4.1"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
			},
			want: [3]string{"v1.0.0", "feedbee", "today"},
		},
		{
			name:  "local checkout",
			stamp: [3]string{"dev", "none", "unknown"},
			info:  debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want:  [3]string{"dev", "none", "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, Date = tt.stamp[0], tt.stamp[1], tt.stamp[2]
			fillFrom(&tt.info)
			if got := [3]string{Version, Commit, Date}; got != tt.want {
				t.Errorf("fillFrom() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTemplate(t *testing.T) {
	if got := Template(); !strings.HasPrefix(got, "{{.Name}} ") || !strings.Contains(got, "commit") {
		t.Errorf("Template() = %q", got)
	}
}
