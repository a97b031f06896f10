// Package command defines the contract every in-text command implements and
// the registry the timeline builder dispatches through.
//
// A command never mutates the timeline under construction. It returns a
// Result describing the steps to append, an optional new reveal rate and
// whether the builder should keep reading attributes.
package command

import (
	"fmt"
	"log"

	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/timeline"
)

// VoiceControl is the part of the voice channel commands may schedule.
type VoiceControl interface {
	Play()
	Stop()
	Resume()
	PlayPeriodic(clipsPerSecond int)
	SetMute(muted bool)
}

// Context is the line-level state a command runs against.
type Context struct {
	Text        string
	Locale      string
	DefaultRate int

	Voice          VoiceControl
	RequestAdvance func()

	// Warn reports a recoverable problem with attr. Nil logs to the
	// standard logger.
	Warn func(attr markup.Attribute, reason string)
}

func (c Context) warnf(attr markup.Attribute, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	if c.Warn != nil {
		c.Warn(attr, reason)
		return
	}
	log.Printf("[WARN] %s at %d: %s", attr.Name, attr.Position, reason)
}

func (c Context) voice() VoiceControl {
	if c.Voice == nil {
		return nopVoice{}
	}
	return c.Voice
}

func (c Context) advance() {
	if c.RequestAdvance != nil {
		c.RequestAdvance()
	}
}

// Result is what a command asks the builder to do.
type Result struct {
	// Continue is false when the builder must stop reading attributes.
	Continue bool
	// Rate replaces the current reveal rate when positive.
	Rate int
	// Steps are appended after the segment ending at the attribute.
	Steps []timeline.Step
	// FastForward discards everything planned so far and starts the
	// timeline revealed up to the attribute position.
	FastForward bool
}

// Proceed is the result of a command that changes nothing.
func Proceed() Result {
	return Result{Continue: true}
}

// Command is one in-text command.
type Command interface {
	Run(ctx Context, attr markup.Attribute, rate int) Result
}

// Func adapts a function to Command.
type Func func(ctx Context, attr markup.Attribute, rate int) Result

// Run calls f.
func (f Func) Run(ctx Context, attr markup.Attribute, rate int) Result {
	return f(ctx, attr, rate)
}

type nopVoice struct{}

func (nopVoice) Play() {}
func (nopVoice) Stop() {}
func (nopVoice) Resume() {}
func (nopVoice) PlayPeriodic(int) {}
func (nopVoice) SetMute(bool) {}
