// Package builder turns a parsed line into a playable timeline by walking its
// attributes in position order and dispatching each to a registered command.
package builder

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"unicode/utf8"

	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/diaglog"
	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/timeline"
)

var (
	// ErrTimelineLive is returned while the previously built timeline is
	// still idle or playing.
	ErrTimelineLive = errors.New("previous timeline is still live")
	// ErrNoRate is returned when neither the start rate nor the default rate
	// is positive.
	ErrNoRate = errors.New("no positive reveal rate")
)

// Input is everything one line needs to be planned.
type Input struct {
	Text        string
	Attributes  []markup.Attribute
	StartRate   int
	DefaultRate int
	Locale      string

	Voice          command.VoiceControl
	RequestAdvance func()
	Display        timeline.Display

	// Line numbers diagnostics; zero omits it.
	Line int
}

// Builder plans timelines. A Builder hands out at most one live timeline at
// a time; build a new one only after the last was completed or killed.
type Builder struct {
	reg  *command.Registry
	diag *diaglog.Logger
	warn func(attr markup.Attribute, reason string)
	live *timeline.Timeline
}

// Option configures a Builder.
type Option func(*Builder)

// WithDiagLogger records skipped and invalid attributes.
func WithDiagLogger(l *diaglog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.diag = l
		}
	}
}

// WithWarnFunc receives every recoverable attribute problem in addition to
// the standard logger.
func WithWarnFunc(fn func(attr markup.Attribute, reason string)) Option {
	return func(b *Builder) { b.warn = fn }
}

// New returns a Builder dispatching through reg.
func New(reg *command.Registry, opts ...Option) *Builder {
	b := &Builder{reg: reg, diag: diaglog.NewNoOp()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build plans the reveal of in.Text.
//
// Attributes without a registered command are skipped without splitting the
// reveal. Every other attribute closes the current segment at its position
// and runs its command; a rate change applies from that position on. A
// command that stops parsing ends the plan without a trailing segment.
func (b *Builder) Build(in Input) (*timeline.Timeline, error) {
	if b.live != nil && b.live.State().Live() {
		return nil, ErrTimelineLive
	}

	rate := in.StartRate
	if rate <= 0 {
		rate = in.DefaultRate
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: start %d, default %d for locale %q", ErrNoRate, in.StartRate, in.DefaultRate, in.Locale)
	}

	length := utf8.RuneCountInString(in.Text)
	tl := timeline.New(length, in.Display)

	attrs := make([]markup.Attribute, len(in.Attributes))
	copy(attrs, in.Attributes)
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Position < attrs[j].Position })

	ctx := command.Context{
		Text:           in.Text,
		Locale:         in.Locale,
		DefaultRate:    in.DefaultRate,
		Voice:          in.Voice,
		RequestAdvance: in.RequestAdvance,
		Warn: func(attr markup.Attribute, reason string) {
			b.report(in.Line, diaglog.EventCommandInvalid, attr, reason)
		},
	}

	pos := 0
	for _, attr := range attrs {
		factory, err := b.reg.Lookup(attr.Name)
		if err != nil {
			b.report(in.Line, diaglog.EventAttributeUnknown, attr, "no command registered")
			continue
		}

		at := attr.Position
		if at > length {
			at = length
		}
		if at < pos {
			at = pos
		}
		tl.Append(timeline.Segment{Start: pos, End: at, Rate: rate})
		pos = at

		res := factory().Run(ctx, attr, rate)
		if res.FastForward {
			tl.Reset(at)
		}
		for _, s := range res.Steps {
			tl.Append(s)
		}
		if res.Rate > 0 {
			rate = res.Rate
		}
		if !res.Continue {
			b.live = tl
			return tl, nil
		}
	}

	tl.Append(timeline.Segment{Start: pos, End: length, Rate: rate})
	b.live = tl
	return tl, nil
}

// Live returns the last timeline built, or nil.
func (b *Builder) Live() *timeline.Timeline {
	return b.live
}

func (b *Builder) report(line int, event string, attr markup.Attribute, reason string) {
	log.Printf("[WARN] builder: [%s] at %d: %s", attr.Name, attr.Position, reason)
	b.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentBuilder,
		Event:     event,
		Line:      line,
		Reason:    reason,
		Payload: map[string]interface{}{
			"attribute": attr.Name,
			"position":  attr.Position,
		},
	})
	if b.warn != nil {
		b.warn(attr, reason)
	}
}
