package version

import (
	"context"
	"strings"
	"testing"
)

// withVersionVars temporarily sets version variables and restores them after the test.
func withVersionVars(t *testing.T, v, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	})
	version, gitCommit, buildDate = v, commit, date
}

func TestGet(t *testing.T) {
	if v := Get().Version; v == "" {
		t.Error("Get() returned an empty version")
	}
}

func TestGet_Ldflags(t *testing.T) {
	withVersionVars(t, "1.0.0", "abc1234", "2024-06-15")

	info := Get()
	if info.Version != "1.0.0" || info.Commit != "abc1234" || info.Built != "2024-06-15" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "2.0.0", Commit: "def4567", Dirty: true, Built: "2024-06-15"}
	s := info.String()
	for _, want := range []string{"convostream version 2.0.0", "commit: def4567 (dirty)", "built: 2024-06-15"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() should contain %q, got: %s", want, s)
		}
	}

	if s := (Info{Version: "dev"}).String(); s != "convostream version dev" {
		t.Errorf("String() = %q", s)
	}
}

func TestInfoAttrs(t *testing.T) {
	attrs := Info{Version: "1.2.3", Commit: "abc123", Built: "2024-01-01"}.Attrs()

	attrMap := make(map[string]any)
	for i := 0; i < len(attrs); i += 2 {
		attrMap[attrs[i].(string)] = attrs[i+1]
	}
	expected := map[string]any{"version": "1.2.3", "commit": "abc123", "built": "2024-01-01"}
	for k, want := range expected {
		if got := attrMap[k]; got != want {
			t.Errorf("%s should be '%v', got: %v", k, want, got)
		}
	}
	if _, ok := attrMap["dirty"]; ok {
		t.Error("dirty should be omitted for a clean build")
	}
}

func TestLogStartup(t *testing.T) {
	LogStartup(context.Background())
}
