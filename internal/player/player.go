// Package player shows one dialogue line at a time: it parses the line,
// binds the speaker's voice, builds the reveal timeline and drives it from
// the host tick.
package player

import (
	"fmt"
	"log"
	"time"

	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/diaglog"
	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/script"
	"github.com/tiroq/linereveal/internal/timeline"
	"github.com/tiroq/linereveal/internal/voice"
)

// LabelVoicePlay labels the callback that starts the voice loop.
const LabelVoicePlay = "voice.play"

// Display is the text surface a line is revealed on.
type Display interface {
	SetText(speaker, text string)
	timeline.Display
}

// Config holds the per-player settings.
type Config struct {
	Locale string

	// Rate is the reveal rate a line starts at; zero uses DefaultRate.
	Rate        int
	DefaultRate int
	Display     Display

	// RequestNext asks the host for the next line. It is called when a
	// line ends with an auto-advance and when the user advances a line
	// that has finished revealing. It may run inside Tick, so hosts queue
	// the request rather than calling RunLine from it.
	RequestNext func()
}

// Player is driven from a single goroutine, like the timeline it owns.
type Player struct {
	b     *builder.Builder
	voice *voice.Sync
	cfg   Config
	diag  *diaglog.Logger

	line    script.Line
	speaker string
	text    string
	tl      *timeline.Timeline
	shown   int
}

// New returns a player planning through b and speaking through v.
func New(b *builder.Builder, v *voice.Sync, cfg Config) *Player {
	return &Player{b: b, voice: v, cfg: cfg, diag: diaglog.NewNoOp()}
}

// SetDiagLogger attaches a diagnostics logger.
func (p *Player) SetDiagLogger(l *diaglog.Logger) {
	if l != nil {
		p.diag = l
	}
}

// RunLine replaces whatever is on screen with line and starts revealing it.
// Markup that does not parse is shown verbatim.
func (p *Player) RunLine(line script.Line) error {
	if p.tl != nil && p.tl.State().Live() {
		p.tl.Kill()
	}

	parsed, err := markup.Parse(line.Text)
	if err != nil {
		log.Printf("[WARN] player: line %d shown without markup: %v", line.Number, err)
		p.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentPlayer,
			Event:     diaglog.EventMarkupFallback,
			Line:      line.Number,
			Reason:    err.Error(),
		})
		parsed = markup.Result{Text: line.Text}
	}

	speaker := line.Speaker
	if speaker == "" {
		speaker = parsed.SpeakerID
	}

	p.voice.SetMute(line.HasTag(script.TagNoVoice))
	if speaker != "" {
		p.voice.SetVoice(speaker)
	}
	if p.cfg.Display != nil {
		p.cfg.Display.SetText(speaker, parsed.Text)
	}

	in := builder.Input{
		Text:           parsed.Text,
		Attributes:     parsed.Attributes,
		StartRate:      p.cfg.Rate,
		DefaultRate:    p.cfg.DefaultRate,
		Locale:         p.cfg.Locale,
		Voice:          p.voice,
		RequestAdvance: p.requestNext,
		Line:           line.Number,
	}
	if p.cfg.Display != nil {
		in.Display = p.cfg.Display
	}
	tl, err := p.b.Build(in)
	if err != nil {
		return fmt.Errorf("build line %d: %w", line.Number, err)
	}

	n := line.Number
	tl.Prepend(timeline.Callback{Label: LabelVoicePlay, Fn: p.voice.Play})
	tl.OnComplete(func() {
		p.voice.Stop()
		p.logLine(diaglog.EventLineComplete, n, nil)
	})
	tl.OnAbandon(func() {
		p.voice.Stop()
		p.logLine(diaglog.EventLineKilled, n, nil)
	})

	p.line, p.speaker, p.text, p.tl = line, speaker, parsed.Text, tl
	p.shown++
	p.logLine(diaglog.EventLineStart, n, map[string]interface{}{
		"length":      tl.Length(),
		"duration_ms": tl.Duration().Milliseconds(),
	})

	return tl.Play()
}

// Interrupt finishes the current line at once. It reports false when no
// line was revealing.
func (p *Player) Interrupt() bool {
	if p.tl == nil || !p.tl.IsPlaying() {
		return false
	}
	p.logLine(diaglog.EventLineInterrupted, p.line.Number, map[string]interface{}{
		"reveal": p.tl.RevealCount(),
	})
	return p.tl.CompleteImmediately()
}

// Dismiss abandons the current line and clears the display.
func (p *Player) Dismiss() {
	if p.tl != nil {
		p.tl.Kill()
	}
	if p.cfg.Display != nil {
		p.cfg.Display.SetRevealCount(0)
	}
}

// UserRequestedAdvance finishes a revealing line, or asks for the next one
// if the line is already fully shown.
func (p *Player) UserRequestedAdvance() {
	if p.Interrupt() {
		return
	}
	p.requestNext()
}

// Tick advances the line and the voice metronome by dt.
func (p *Player) Tick(dt time.Duration) {
	p.voice.Advance(dt)
	if p.tl != nil {
		p.tl.Advance(dt)
	}
}

// Timeline returns the current line's timeline, or nil.
func (p *Player) Timeline() *timeline.Timeline {
	return p.tl
}

// Status is a point-in-time view of the player.
type Status struct {
	Line       int    `json:"line"`
	Speaker    string `json:"speaker,omitempty"`
	Text       string `json:"text"`
	State      string `json:"state"`
	Reveal     int    `json:"reveal"`
	Length     int    `json:"length"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	DurationMS int64  `json:"duration_ms"`
	VoiceMode  string `json:"voice_mode"`
	Muted      bool   `json:"muted"`
	LinesShown int    `json:"lines_shown"`
}

// Snapshot reports what is on screen.
func (p *Player) Snapshot() Status {
	s := Status{
		State:      "none",
		VoiceMode:  p.voice.Mode().String(),
		Muted:      p.voice.Muted(),
		LinesShown: p.shown,
	}
	if p.tl == nil {
		return s
	}
	s.Line = p.line.Number
	s.Speaker = p.speaker
	s.Text = p.text
	s.State = p.tl.State().String()
	s.Reveal = p.tl.RevealCount()
	s.Length = p.tl.Length()
	s.ElapsedMS = p.tl.Elapsed().Milliseconds()
	s.DurationMS = p.tl.Duration().Milliseconds()
	return s
}

func (p *Player) requestNext() {
	p.logLine(diaglog.EventAdvanceRequested, p.line.Number, nil)
	if p.cfg.RequestNext != nil {
		p.cfg.RequestNext()
	}
}

func (p *Player) logLine(event string, line int, payload map[string]interface{}) {
	e := diaglog.LogEntry{
		Component: diaglog.ComponentPlayer,
		Event:     event,
		Line:      line,
		Speaker:   p.speaker,
	}
	if payload != nil {
		e.Payload = payload
	}
	p.diag.Log(e)
}
