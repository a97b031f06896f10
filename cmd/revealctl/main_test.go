package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/linereveal/internal/ipc"
	"github.com/tiroq/linereveal/internal/player"
)

func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, v := range []string{"REVEAL_LOCALE", "REVEAL_TICK_HZ", "REVEAL_LOG_PATH"} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	return home
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCtl(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	setup(t)
	tests := []struct {
		args []string
		code int
	}{
		{nil, 2},
		{[]string{"bogus"}, 2},
		{[]string{"help"}, 0},
		{[]string{"version"}, 0},
		{[]string{"plan"}, 2},
		{[]string{"lint"}, 2},
	}
	for _, tt := range tests {
		if code, _, _ := runCtl(tt.args...); code != tt.code {
			t.Errorf("run(%v) = %d, want %d", tt.args, code, tt.code)
		}
	}
}

func TestSendCommand(t *testing.T) {
	setup(t)
	code, stdout, stderr := runCtl("advance")
	if code != 0 {
		t.Fatalf("advance exit = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "sent advance") || !strings.Contains(stderr, "does not appear to be running") {
		t.Errorf("stdout %q stderr %q", stdout, stderr)
	}
	cmd, err := ipc.ReadCommand()
	if err != nil || cmd != ipc.CmdAdvance {
		t.Errorf("ReadCommand() = %q, %v", cmd, err)
	}
}

func TestStatus(t *testing.T) {
	setup(t)
	if code, _, stderr := runCtl("status"); code != 1 || !strings.Contains(stderr, "no status yet") {
		t.Errorf("status without daemon = %d, %q", code, stderr)
	}

	snap := &ipc.StatusSnapshot{
		Player:     player.Status{Line: 2, Speaker: "Mae", Text: "Hello", State: "playing", Reveal: 3, Length: 5, VoiceMode: "looping"},
		Script:     "scene.txt",
		LineIndex:  1,
		LineCount:  4,
		LastAction: "advance",
		Timestamp:  time.Now(),
	}
	if err := ipc.WriteStatus(snap); err != nil {
		t.Fatal(err)
	}
	code, stdout, _ := runCtl("status")
	if code != 0 {
		t.Fatalf("status exit = %d", code)
	}
	for _, want := range []string{"scene.txt (line 2 of 4)", "3/5 revealed", "Mae: Hello", "disconnected"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}

	code, stdout, _ = runCtl("status", "-json")
	if code != 0 || !strings.Contains(stdout, `"line_count":4`) {
		t.Errorf("status -json = %d %s", code, stdout)
	}
}

func TestPlan(t *testing.T) {
	setup(t)
	path := writeScript(t, "Hello\nBye\n")

	code, stdout, stderr := runCtl("plan", "-rate", "10", "-format", "srt", path)
	if code != 0 {
		t.Fatalf("plan exit = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "00:00:00,000 --> 00:00:01,500") || !strings.Contains(stdout, "00:00:01,500 --> 00:00:02,800") {
		t.Errorf("srt output:\n%s", stdout)
	}

	out := filepath.Join(t.TempDir(), "scene.vtt")
	code, stdout, _ = runCtl("plan", "-rate", "10", "-format", "vtt", "-o", out, path)
	if code != 0 || !strings.Contains(stdout, "2 cues") {
		t.Fatalf("plan -o = %d %q", code, stdout)
	}
	if data, err := os.ReadFile(out); err != nil || !strings.HasPrefix(string(data), "WEBVTT") {
		t.Errorf("vtt file: %v %q", err, data)
	}

	if code, _, _ := runCtl("plan", "-rate", "10", "-format", "ass", path); code != 1 {
		t.Errorf("unknown format exit = %d, want 1", code)
	}
}

func TestLint(t *testing.T) {
	setup(t)
	clean := writeScript(t, "Hello[w=0.5/] there\n")
	if code, stdout, _ := runCtl("lint", clean); code != 0 {
		t.Errorf("clean script exit = %d: %s", code, stdout)
	}

	dirty := writeScript(t, "Hello [bogus/] there\n")
	code, stdout, _ := runCtl("lint", dirty)
	if code != 1 || !strings.Contains(stdout, "unknown-attribute") {
		t.Errorf("dirty script = %d %q", code, stdout)
	}
}

func TestExportDiagMissingLog(t *testing.T) {
	setup(t)
	code, _, stderr := runCtl("export-diag", "-log", filepath.Join(t.TempDir(), "none.ndjson"))
	if code != 1 || !strings.Contains(stderr, "REVEAL_DEBUG=true") {
		t.Errorf("export-diag = %d %q", code, stderr)
	}
}

func TestInitConfig(t *testing.T) {
	setup(t)
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	if code, stdout, stderr := runCtl("init-config", "-path", path); code != 0 || !strings.Contains(stdout, "Wrote:") {
		t.Fatalf("init-config = %d %q %q", code, stdout, stderr)
	}
	if code, _, stderr := runCtl("init-config", "-path", path); code != 1 || !strings.Contains(stderr, "already exists") {
		t.Errorf("second init-config = %d %q", code, stderr)
	}
	if code, _, _ := runCtl("init-config", "-path", path, "-force"); code != 0 {
		t.Errorf("init-config -force = %d", code)
	}
}
