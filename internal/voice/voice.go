// Package voice drives the single audio channel a dialogue line speaks
// through: a looping voice clip, a periodic "blip" metronome, or silence.
package voice

import (
	"log"
	"strings"
	"time"

	"github.com/tiroq/linereveal/internal/diaglog"
)

// Clip identifies a voice sample.
type Clip struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// AudioSink is the audio hardware binding. Sync drives it but does not own
// the device.
type AudioSink interface {
	SetClip(c Clip)
	Play(loop bool)
	Stop()
	PlayOneShot()
	SetMute(muted bool)
}

// Bank resolves a speaker id to a voice clip.
type Bank interface {
	Clip(speaker string) (Clip, bool)
}

// MapBank is a Bank keyed by speaker id, compared case-insensitively.
type MapBank map[string]Clip

// Clip implements Bank.
func (b MapBank) Clip(speaker string) (Clip, bool) {
	if c, ok := b[speaker]; ok {
		return c, true
	}
	for k, c := range b {
		if strings.EqualFold(k, speaker) {
			return c, true
		}
	}
	return Clip{}, false
}

// Mode is what the channel is doing.
type Mode int

const (
	Idle Mode = iota
	Looping
	Periodic
)

func (m Mode) String() string {
	switch m {
	case Looping:
		return "looping"
	case Periodic:
		return "periodic"
	default:
		return "idle"
	}
}

// Sync is the voice channel of the line being shown. It is driven from the
// host tick goroutine and is not safe for concurrent use.
type Sync struct {
	sink AudioSink
	bank Bank
	diag *diaglog.Logger

	clip    Clip
	hasClip bool
	speaker string
	muted   bool

	mode      Mode
	rate      int           // clips per second in Periodic mode
	untilNext time.Duration // time to the next periodic one-shot

	// mode and rate saved by Stop for Resume
	stoppedMode Mode
	stoppedRate int
}

// New returns an idle channel. bank may be nil.
func New(sink AudioSink, bank Bank) *Sync {
	return &Sync{sink: sink, bank: bank, diag: diaglog.NewNoOp()}
}

// SetDiagLogger attaches a diagnostics logger.
func (s *Sync) SetDiagLogger(l *diaglog.Logger) {
	if l != nil {
		s.diag = l
	}
}

// SetVoice binds the clip of speaker. An unknown speaker keeps the previous
// clip and reports false.
func (s *Sync) SetVoice(speaker string) bool {
	var (
		c  Clip
		ok bool
	)
	if s.bank != nil {
		c, ok = s.bank.Clip(speaker)
	}
	if !ok {
		log.Printf("[WARN] voice: no clip for speaker %q, keeping %q", speaker, s.clip.Name)
		s.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentVoice,
			Event:     diaglog.EventVoiceMissing,
			Speaker:   speaker,
			Reason:    "unknown speaker",
		})
		return false
	}
	s.clip = c
	s.hasClip = true
	s.speaker = speaker
	s.sink.SetClip(c)
	return true
}

// Speaker returns the speaker whose clip is bound.
func (s *Sync) Speaker() string {
	return s.speaker
}

// Play loops the bound clip, replacing a periodic schedule.
func (s *Sync) Play() {
	if !s.hasClip {
		log.Printf("[WARN] voice: play with no clip bound")
		s.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentVoice,
			Event:     diaglog.EventVoiceMissing,
			Reason:    "no clip bound",
		})
		return
	}
	s.rate = 0
	s.untilNext = 0
	s.sink.Play(true)
	s.setMode(Looping)
}

// Stop halts the loop and cancels any periodic schedule.
func (s *Sync) Stop() {
	s.stoppedMode, s.stoppedRate = s.mode, s.rate
	if s.mode != Idle {
		s.sink.Stop()
	}
	s.rate = 0
	s.untilNext = 0
	s.setMode(Idle)
}

// Resume restores whatever Stop interrupted.
func (s *Sync) Resume() {
	mode, rate := s.stoppedMode, s.stoppedRate
	s.stoppedMode, s.stoppedRate = Idle, 0
	switch mode {
	case Looping:
		s.Play()
	case Periodic:
		s.PlayPeriodic(rate)
	}
}

// PlayPeriodic switches to one-shot playback clipsPerSecond times a second.
// The first clip plays immediately.
func (s *Sync) PlayPeriodic(clipsPerSecond int) {
	if clipsPerSecond <= 0 {
		log.Printf("[WARN] voice: invalid periodic rate %d", clipsPerSecond)
		return
	}
	if !s.hasClip {
		log.Printf("[WARN] voice: periodic play with no clip bound")
		s.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentVoice,
			Event:     diaglog.EventVoiceMissing,
			Reason:    "no clip bound",
		})
		return
	}
	if s.mode == Looping {
		s.sink.Stop()
	}
	s.rate = clipsPerSecond
	s.setMode(Periodic)
	s.sink.PlayOneShot()
	s.untilNext = s.period()
}

// Advance runs the periodic schedule forward by dt. At most one clip plays
// per call; a backlog longer than one period is dropped.
func (s *Sync) Advance(dt time.Duration) {
	if s.mode != Periodic || dt <= 0 {
		return
	}
	s.untilNext -= dt
	if s.untilNext > 0 {
		return
	}
	s.sink.PlayOneShot()
	s.untilNext += s.period()
	if s.untilNext < 0 {
		s.untilNext = 0
	}
}

func (s *Sync) period() time.Duration {
	if p := time.Second / time.Duration(s.rate); p > 0 {
		return p
	}
	return time.Nanosecond
}

// SetMute mutes or unmutes the channel without touching play state.
func (s *Sync) SetMute(muted bool) {
	s.muted = muted
	s.sink.SetMute(muted)
}

// Muted reports the mute flag.
func (s *Sync) Muted() bool {
	return s.muted
}

// Mode returns the current mode.
func (s *Sync) Mode() Mode {
	return s.mode
}

// Rate returns the periodic rate, or 0 outside Periodic mode.
func (s *Sync) Rate() int {
	return s.rate
}

func (s *Sync) setMode(m Mode) {
	if s.mode == m {
		return
	}
	s.mode = m
	s.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentVoice,
		Event:     diaglog.EventVoiceMode,
		Speaker:   s.speaker,
		Reason:    m.String(),
	})
}
