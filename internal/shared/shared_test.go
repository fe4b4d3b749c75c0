package shared

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestHelpers(t *testing.T) {
	t.Run("GenerateID", func(t *testing.T) {
		id := GenerateID()
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("GenerateID() = %q, not a valid uuid: %v", id, err)
		}
		if GenerateID() == id {
			t.Error("expected two ids to differ")
		}
	})

	t.Run("GenerateState", func(t *testing.T) {
		a, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState() error = %v", err)
		}
		b, _ := GenerateState()
		if a == "" || a == b {
			t.Errorf("expected distinct non-empty states, got %q and %q", a, b)
		}
		if strings.ContainsAny(a, "+/=") {
			t.Errorf("state should be URL safe, got %q", a)
		}
	})

	t.Run("MarshalJSON", func(t *testing.T) {
		data := map[string]int{"a": 1}

		compact, err := MarshalJSON(data, false)
		if err != nil {
			t.Fatalf("MarshalJSON() error = %v", err)
		}
		if string(compact) != `{"a":1}` {
			t.Errorf("MarshalJSON(compact) = %s", compact)
		}

		pretty, err := MarshalJSON(data, true)
		if err != nil {
			t.Fatalf("MarshalJSON() error = %v", err)
		}
		if !strings.Contains(string(pretty), "\n  \"a\": 1") {
			t.Errorf("MarshalJSON(pretty) = %s", pretty)
		}
	})

	t.Run("Pluralize", func(t *testing.T) {
		tc := []struct {
			n    int
			want string
		}{
			{0, "tracks"},
			{1, "track"},
			{2, "tracks"},
		}
		for _, tt := range tc {
			if got := Pluralize(tt.n, "track", "tracks"); got != tt.want {
				t.Errorf("Pluralize(%d) = %s, want %s", tt.n, got, tt.want)
			}
		}
	})

	t.Run("VisibilityString", func(t *testing.T) {
		if VisibilityString(true) != "Public" || VisibilityString(false) != "Private" {
			t.Error("unexpected visibility strings")
		}
	})
}

func TestLoggers(t *testing.T) {
	t.Run("NewLogger writes to buffer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		logger.Info("hello", "period", "202301")

		if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "202301") {
			t.Errorf("unexpected log output: %s", buf.String())
		}
	})

	t.Run("NewFileLogger creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "tui.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger() error = %v", err)
		}
		logger.Info("written")

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(content), "written") {
			t.Errorf("log file missing entry: %s", content)
		}
	})
}

func TestBrowserCommand(t *testing.T) {
	const url = "https://accounts.spotify.com/authorize?state=x"
	tc := []struct {
		name     string
		goos     string
		override string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{name: "darwin", goos: "darwin", wantName: "open", wantArgs: []string{url}},
		{name: "linux", goos: "linux", wantName: "xdg-open", wantArgs: []string{url}},
		{name: "windows", goos: "windows", wantName: "rundll32", wantArgs: []string{"url.dll,FileProtocolHandler", url}},
		{name: "override", goos: "linux", override: "firefox --new-tab", wantName: "firefox", wantArgs: []string{"--new-tab", url}},
		{name: "unsupported", goos: "plan9", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, tt.override, url)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != tt.wantName || strings.Join(args, " ") != strings.Join(tt.wantArgs, " ") {
				t.Errorf("got %s %v, want %s %v", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}
