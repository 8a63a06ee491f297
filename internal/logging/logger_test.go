package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":    slog.LevelDebug,
		"debug":    slog.LevelDebug,
		"":         slog.LevelInfo,
		"INFO":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"ERROR":    slog.LevelError,
		"CRITICAL": LevelCritical,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, err := ParseLevel("LOUD"); err == nil {
		t.Fatal("ParseLevel(LOUD) succeeded, want error")
	}
}

func TestConfigureControlsLevel(t *testing.T) {
	defer Configure(Config{})

	var buf bytes.Buffer
	Configure(Config{Level: "WARNING", Output: &buf})

	log := New("test")
	log.Info("hidden %d", 1)
	log.Warn("visible %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line emitted at WARNING level: %s", out)
	}
	if !strings.Contains(out, "visible 2") {
		t.Fatalf("warn line missing: %s", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Fatalf("component attribute missing: %s", out)
	}
}

func TestConfigureJSONFormat(t *testing.T) {
	defer Configure(Config{})

	var buf bytes.Buffer
	Configure(Config{Level: "INFO", Format: "json", Output: &buf})

	New("test").Info("structured")
	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Fatalf("json output missing component: %s", buf.String())
	}
}
