package main

import (
	"fmt"
	"time"

	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/ipc"
	"github.com/tiroq/linereveal/internal/player"
	"github.com/tiroq/linereveal/internal/script"
	"github.com/tiroq/linereveal/internal/voice"
)

// session steps through a script. Everything on it runs on the main loop
// goroutine.
type session struct {
	name   string
	lines  []script.Line
	index  int
	player *player.Player

	pendingNext bool
	finished    bool
	lastAction  string
	lastErr     string
}

func newSession(name string, lines []script.Line, b *builder.Builder, v *voice.Sync, cfg player.Config) *session {
	s := &session{name: name, lines: lines, index: -1}
	cfg.RequestNext = s.queueNext
	s.player = player.New(b, v, cfg)
	return s
}

// queueNext is the player's RequestNext. It may fire inside Tick, so the
// line change waits for flush.
func (s *session) queueNext() {
	s.pendingNext = true
}

func (s *session) flush() {
	if s.pendingNext {
		s.pendingNext = false
		s.next()
	}
}

// tick drives the player by dt and starts a queued line.
func (s *session) tick(dt time.Duration) {
	s.player.Tick(dt)
	s.flush()
}

// next shows the following line. Past the last line the screen is left as
// it is.
func (s *session) next() {
	if s.index+1 >= len(s.lines) {
		if !s.finished {
			outLog.Printf("[EVENT] end of script %s (%d lines)", s.name, len(s.lines))
			s.finished = true
		}
		s.lastAction = "end"
		return
	}
	s.index++
	s.finished = false
	line := s.lines[s.index]
	outLog.Printf("[EVENT] line %d/%d (script line %d)", s.index+1, len(s.lines), line.Number)
	if err := s.player.RunLine(line); err != nil {
		errLog.Printf("Failed to run line %d: %v", line.Number, err)
		s.lastErr = err.Error()
		return
	}
	s.lastAction = "line"
}

// handle applies a control command. It reports true for quit.
func (s *session) handle(cmd ipc.Command) bool {
	outLog.Printf("Received command: %s", cmd)

	switch cmd {
	case ipc.CmdAdvance:
		s.player.UserRequestedAdvance()
	case ipc.CmdSkip:
		if !s.player.Interrupt() {
			outLog.Println("Skip ignored: no line is revealing")
		}
	case ipc.CmdDismiss:
		s.player.Dismiss()
	case ipc.CmdNext:
		s.next()
	case ipc.CmdRestart:
		s.index = -1
		s.next()
	case ipc.CmdQuit:
		return true
	default:
		errLog.Printf("Unknown command: %s", cmd)
		s.lastErr = fmt.Sprintf("unknown command %q", cmd)
		return false
	}
	s.flush()
	s.lastAction = string(cmd)
	return false
}

func (s *session) status(bridgeConnected bool) *ipc.StatusSnapshot {
	return &ipc.StatusSnapshot{
		Player:          s.player.Snapshot(),
		Script:          s.name,
		LineIndex:       s.index,
		LineCount:       len(s.lines),
		BridgeConnected: bridgeConnected,
		LastAction:      s.lastAction,
		LastError:       s.lastErr,
		Timestamp:       time.Now(),
	}
}
