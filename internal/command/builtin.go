package command

import (
	"math"

	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/timeline"
)

// Built-in command names.
const (
	NameRate    = "cps"
	NameDone    = "done"
	NameFast    = "fast"
	NameWait    = "w"
	NameVoice   = "voice"
	autoAdvance = "autoAdvance"
	autoAlias   = "nw"
)

const (
	// AdvanceDelay separates a terminated line from its advance request.
	AdvanceDelay = 0.05
	// StartupDelay keeps a voice command at offset 0 behind the voice play
	// callback the player prepends.
	StartupDelay = 0.01
)

// Callback labels used by the built-in commands.
const (
	LabelAdvance   = "advance"
	LabelVoiceStop = "voice.stop"
	LabelVoiceGo   = "voice.resume"
	LabelVoice     = "voice"
)

// BuiltinNames lists the names every registry must provide.
func BuiltinNames() []string {
	return []string{NameRate, NameDone, NameFast, NameVoice, NameWait}
}

// Builtin returns a registry holding the built-in commands.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister(NameRate, func() Command { return SetRate{} })
	r.MustRegister(NameDone, func() Command { return Terminate{} })
	r.MustRegister(NameFast, func() Command { return FastForward{} })
	r.MustRegister(NameWait, func() Command { return Wait{} })
	r.MustRegister(NameVoice, func() Command { return Voice{} })
	return r
}

// SetRate changes the reveal rate for everything after the attribute.
// Accepted forms: [cps=30/], [cps rate=30/], [cps default/].
type SetRate struct{}

func (SetRate) Run(ctx Context, attr markup.Attribute, rate int) Result {
	if attr.Has("default") {
		if ctx.DefaultRate <= 0 {
			ctx.warnf(attr, "no default rate for locale %q", ctx.Locale)
			return Proceed()
		}
		return Result{Continue: true, Rate: ctx.DefaultRate}
	}

	v, ok := attr.Prop("rate")
	if !ok {
		v, ok = attr.Prop(NameRate)
	}
	if !ok {
		ctx.warnf(attr, "missing rate")
		return Proceed()
	}
	n, isInt := v.Int()
	if !isInt {
		ctx.warnf(attr, "rate must be an integer, got %s %q", v.Kind(), v.String())
		return Proceed()
	}
	if n <= 0 {
		ctx.warnf(attr, "rate must be positive, got %d", n)
		return Proceed()
	}
	return Result{Continue: true, Rate: n}
}

// Terminate stops the line at the attribute. With autoAdvance (or nw) the
// line asks for the next one after a short delay.
type Terminate struct{}

func (Terminate) Run(ctx Context, attr markup.Attribute, rate int) Result {
	res := Result{Continue: false}
	if attr.Has(autoAdvance) || attr.Has(autoAlias) {
		res.Steps = []timeline.Step{
			timeline.Interval{Seconds: AdvanceDelay},
			timeline.Callback{Label: LabelAdvance, Fn: ctx.advance},
		}
	}
	return res
}

// FastForward shows everything up to the attribute at once.
type FastForward struct{}

func (FastForward) Run(ctx Context, attr markup.Attribute, rate int) Result {
	return Result{Continue: true, FastForward: true}
}

// Wait pauses the reveal. The voice is silent for the duration of the pause.
// Accepted forms: [w=0.5/], [w seconds=0.5/].
type Wait struct{}

func (Wait) Run(ctx Context, attr markup.Attribute, rate int) Result {
	v, ok := attr.Prop("seconds")
	if !ok {
		v, ok = attr.Prop(NameWait)
	}
	if !ok {
		ctx.warnf(attr, "missing seconds")
		return Proceed()
	}
	secs, isNum := v.Float()
	if !isNum {
		ctx.warnf(attr, "seconds must be a number, got %s %q", v.Kind(), v.String())
		return Proceed()
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		ctx.warnf(attr, "seconds must be finite, got %g", secs)
		return Proceed()
	}
	if secs < 0 {
		ctx.warnf(attr, "seconds must not be negative, got %g", secs)
		return Proceed()
	}
	if secs > timeline.MaxInterval.Seconds() {
		ctx.warnf(attr, "seconds must not exceed %g, got %g", timeline.MaxInterval.Seconds(), secs)
		return Proceed()
	}

	voice := ctx.voice()
	return Result{
		Continue: true,
		Steps: []timeline.Step{
			timeline.Callback{Label: LabelVoiceStop, Fn: voice.Stop},
			timeline.Interval{Seconds: secs},
			timeline.Callback{Label: LabelVoiceGo, Fn: voice.Resume},
		},
	}
}

// Voice switches the voice channel. Exactly one of default, speed or mute
// must be given.
type Voice struct{}

func (Voice) Run(ctx Context, attr markup.Attribute, rate int) Result {
	var selected []markup.Property
	for _, p := range attr.Properties {
		switch p.Name {
		case "default", "speed", "mute":
			selected = append(selected, p)
		}
	}
	if len(selected) != 1 {
		ctx.warnf(attr, "need exactly one of default, speed or mute, got %d", len(selected))
		return Proceed()
	}

	voice := ctx.voice()
	var fn func()
	p := selected[0]
	switch p.Name {
	case "default":
		fn = voice.Play
	case "speed":
		n, ok := p.Value.Int()
		if !ok || n <= 0 {
			ctx.warnf(attr, "speed must be a positive integer, got %q", p.Value.String())
			return Proceed()
		}
		fn = func() { voice.PlayPeriodic(n) }
	case "mute":
		b, ok := p.Value.Bool()
		if !ok {
			ctx.warnf(attr, "mute must be true or false, got %q", p.Value.String())
			return Proceed()
		}
		fn = func() { voice.SetMute(b) }
	}

	var steps []timeline.Step
	if attr.Position == 0 {
		steps = append(steps, timeline.Interval{Seconds: StartupDelay})
	}
	steps = append(steps, timeline.Callback{Label: LabelVoice + "." + p.Name, Fn: fn})
	return Result{Continue: true, Steps: steps}
}
