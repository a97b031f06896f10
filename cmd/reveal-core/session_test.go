package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/console"
	"github.com/tiroq/linereveal/internal/ipc"
	"github.com/tiroq/linereveal/internal/player"
	"github.com/tiroq/linereveal/internal/script"
	"github.com/tiroq/linereveal/internal/voice"
)

func TestMain(m *testing.M) {
	outLog = log.New(io.Discard, "", 0)
	errLog = log.New(io.Discard, "", 0)
	os.Exit(m.Run())
}

func newTestSession(t *testing.T, texts ...string) (*session, *bytes.Buffer) {
	t.Helper()
	var lines []script.Line
	for i, text := range texts {
		lines = append(lines, script.Line{Number: i + 1, Text: text})
	}
	var out bytes.Buffer
	v := voice.New(console.NewAudio(log.New(io.Discard, "", 0)), voice.MapBank{})
	s := newSession("test.txt", lines, builder.New(command.Builtin()), v, player.Config{
		Locale:      "en-US",
		DefaultRate: 10,
		Display:     console.NewDisplay(&out, false),
	})
	return s, &out
}

func TestSessionPlaysAndAdvances(t *testing.T) {
	s, out := newTestSession(t, "Mae: Hello", "Bye")
	s.next()
	if s.index != 0 {
		t.Fatalf("index = %d, want 0", s.index)
	}

	s.tick(200 * time.Millisecond)
	if got := s.player.Snapshot().Reveal; got != 2 {
		t.Errorf("reveal after 200ms = %d, want 2", got)
	}

	// first advance finishes the line, the second moves on
	s.handle(ipc.CmdAdvance)
	if s.index != 0 || s.player.Snapshot().Reveal != 5 {
		t.Errorf("after advance: index %d reveal %d", s.index, s.player.Snapshot().Reveal)
	}
	s.handle(ipc.CmdAdvance)
	if s.index != 1 {
		t.Errorf("index after second advance = %d, want 1", s.index)
	}
	if !strings.Contains(out.String(), "Mae: Hello\n") {
		t.Errorf("console output = %q", out.String())
	}
	if s.lastAction != string(ipc.CmdAdvance) {
		t.Errorf("lastAction = %q", s.lastAction)
	}
}

func TestSessionAutoAdvanceWaitsForFlush(t *testing.T) {
	s, _ := newTestSession(t, "Hi[done nw/]", "Next")
	s.next()
	s.tick(time.Second)
	if s.index != 1 {
		t.Errorf("index = %d, want 1 after auto-advance", s.index)
	}
	if got := s.player.Snapshot().Text; got != "Next" {
		t.Errorf("text = %q, want Next", got)
	}
}

func TestSessionEndOfScript(t *testing.T) {
	s, _ := newTestSession(t, "Only")
	s.next()
	s.handle(ipc.CmdNext)
	if s.index != 0 || !s.finished {
		t.Errorf("index %d finished %v", s.index, s.finished)
	}
	if s.player.Snapshot().Text != "Only" {
		t.Error("last line should stay on screen")
	}

	s.handle(ipc.CmdRestart)
	if s.index != 0 || s.finished {
		t.Errorf("after restart: index %d finished %v", s.index, s.finished)
	}
}

func TestSessionCommands(t *testing.T) {
	tests := []struct {
		cmd       ipc.Command
		wantState string
		quit      bool
	}{
		{ipc.CmdSkip, "completed", false},
		{ipc.CmdDismiss, "killed", false},
		{ipc.CmdQuit, "playing", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			s, _ := newTestSession(t, "Hello there")
			s.next()
			if quit := s.handle(tt.cmd); quit != tt.quit {
				t.Errorf("handle() quit = %v, want %v", quit, tt.quit)
			}
			if got := s.player.Snapshot().State; got != tt.wantState {
				t.Errorf("state = %q, want %q", got, tt.wantState)
			}
		})
	}
}

func TestSessionStatus(t *testing.T) {
	s, _ := newTestSession(t, "A", "B")
	st := s.status(false)
	if st.LineIndex != -1 || st.LineCount != 2 || st.Player.State != "none" || st.Script != "test.txt" {
		t.Errorf("status before first line = %+v", st)
	}
	s.next()
	st = s.status(true)
	if st.LineIndex != 0 || st.Player.Text != "A" || !st.BridgeConnected {
		t.Errorf("status = %+v", st)
	}
}

func TestReadConsoleInput(t *testing.T) {
	cmds := make(chan ipc.Command, 8)
	readConsoleInput(strings.NewReader("\nskip\nbogus\n  QUIT \n"), cmds)
	close(cmds)

	var got []ipc.Command
	for c := range cmds {
		got = append(got, c)
	}
	want := []ipc.Command{ipc.CmdAdvance, ipc.CmdSkip, ipc.CmdQuit}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}
