package command

import (
	"math"
	"strings"
	"testing"

	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/timeline"
	"github.com/tiroq/linereveal/testutil"
)

type fakeVoice struct {
	calls []string
}

func (v *fakeVoice) Play() { v.calls = append(v.calls, "play") }
func (v *fakeVoice) Stop() { v.calls = append(v.calls, "stop") }
func (v *fakeVoice) Resume() { v.calls = append(v.calls, "resume") }
func (v *fakeVoice) PlayPeriodic(n int) {
	v.calls = append(v.calls, "periodic:"+strings.Repeat("|", n))
}
func (v *fakeVoice) SetMute(m bool) {
	if m {
		v.calls = append(v.calls, "mute")
	} else {
		v.calls = append(v.calls, "unmute")
	}
}

type warnings []string

func (w *warnings) ctx(voice VoiceControl) Context {
	return Context{
		Text:        "Hello World",
		Locale:      "en-US",
		DefaultRate: 60,
		Voice:       voice,
		Warn: func(attr markup.Attribute, reason string) {
			*w = append(*w, attr.Name+": "+reason)
		},
	}
}

func attr(name string, pos int, props ...markup.Property) markup.Attribute {
	return markup.Attribute{Name: name, Position: pos, Properties: props}
}

func prop(name string, v markup.Value) markup.Property {
	return markup.Property{Name: name, Value: v}
}

func fireAll(steps []timeline.Step) {
	for _, s := range steps {
		if c, ok := s.(timeline.Callback); ok && c.Fn != nil {
			c.Fn()
		}
	}
}

func TestSetRate(t *testing.T) {
	tests := []struct {
		name     string
		attr     markup.Attribute
		wantRate int
		wantWarn bool
	}{
		{"rate property", attr("cps", 3, prop("rate", markup.IntValue(20))), 20, false},
		{"shorthand", attr("cps", 3, prop("cps", markup.IntValue(45))), 45, false},
		{"default flag", attr("cps", 3, prop("default", markup.BoolValue(true))), 60, false},
		{"default with int value", attr("cps", 3, prop("default", markup.IntValue(1))), 60, false},
		{"default with false value", attr("cps", 3, prop("default", markup.BoolValue(false))), 60, false},
		{"missing", attr("cps", 3), 0, true},
		{"float", attr("cps", 3, prop("rate", markup.FloatValue(2.5))), 0, true},
		{"zero", attr("cps", 3, prop("rate", markup.IntValue(0))), 0, true},
		{"negative", attr("cps", 3, prop("cps", markup.IntValue(-4))), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w warnings
			res := SetRate{}.Run(w.ctx(nil), tt.attr, 10)
			if !res.Continue {
				t.Error("SetRate must continue parsing")
			}
			if res.Rate != tt.wantRate {
				t.Errorf("Rate = %d, want %d", res.Rate, tt.wantRate)
			}
			if (len(w) > 0) != tt.wantWarn {
				t.Errorf("warnings = %v, want warning: %v", w, tt.wantWarn)
			}
			if len(res.Steps) != 0 {
				t.Errorf("unexpected steps %v", res.Steps)
			}
		})
	}
}

func TestTerminate(t *testing.T) {
	var w warnings
	res := Terminate{}.Run(w.ctx(nil), attr("done", 5), 10)
	if res.Continue {
		t.Error("Terminate must stop parsing")
	}
	if len(res.Steps) != 0 {
		t.Errorf("plain done produced steps %v", res.Steps)
	}

	flags := []markup.Property{
		prop("autoAdvance", markup.BoolValue(true)),
		prop("nw", markup.BoolValue(true)),
		prop("nw", markup.IntValue(1)),
		prop("autoAdvance", markup.StringValue("yes")),
	}
	for _, p := range flags {
		key := p.Name + "=" + p.Value.String()
		advanced := 0
		ctx := w.ctx(nil)
		ctx.RequestAdvance = func() { advanced++ }
		res = Terminate{}.Run(ctx, attr("done", 5, p), 10)
		if res.Continue {
			t.Errorf("%s: Terminate must stop parsing", key)
		}
		if len(res.Steps) != 2 {
			t.Fatalf("%s: got %d steps, want 2", key, len(res.Steps))
		}
		if iv, ok := res.Steps[0].(timeline.Interval); !ok || iv.Seconds != AdvanceDelay {
			t.Errorf("%s: first step = %v, want interval %v", key, res.Steps[0], AdvanceDelay)
		}
		fireAll(res.Steps)
		if advanced != 1 {
			t.Errorf("%s: advance requested %d times, want 1", key, advanced)
		}
	}
}

func TestFastForward(t *testing.T) {
	var w warnings
	res := FastForward{}.Run(w.ctx(nil), attr("fast", 4), 10)
	if !res.Continue || !res.FastForward {
		t.Errorf("FastForward result = %+v", res)
	}
}

func TestWait(t *testing.T) {
	tests := []struct {
		name     string
		attr     markup.Attribute
		wantSecs float64
		wantWarn bool
	}{
		{"seconds float", attr("w", 5, prop("seconds", markup.FloatValue(1.0))), 1.0, false},
		{"shorthand int", attr("w", 5, prop("w", markup.IntValue(2))), 2, false},
		{"zero", attr("w", 5, prop("w", markup.IntValue(0))), 0, false},
		{"missing", attr("w", 5), -1, true},
		{"string", attr("w", 5, prop("w", markup.StringValue("soon"))), -1, true},
		{"negative", attr("w", 5, prop("seconds", markup.FloatValue(-0.5))), -1, true},
		{"nan", attr("w", 5, prop("w", markup.FloatValue(math.NaN()))), -1, true},
		{"positive infinity", attr("w", 5, prop("w", markup.FloatValue(math.Inf(1)))), -1, true},
		{"negative infinity", attr("w", 5, prop("w", markup.FloatValue(math.Inf(-1)))), -1, true},
		{"too long", attr("w", 5, prop("w", markup.FloatValue(1e300))), -1, true},
		{"longest allowed", attr("w", 5, prop("seconds", markup.FloatValue(timeline.MaxInterval.Seconds()))), timeline.MaxInterval.Seconds(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w warnings
			voice := &fakeVoice{}
			res := Wait{}.Run(w.ctx(voice), tt.attr, 10)
			if !res.Continue {
				t.Error("Wait must continue parsing")
			}
			if tt.wantWarn {
				if len(w) == 0 {
					t.Error("expected a warning")
				}
				if len(res.Steps) != 0 {
					t.Errorf("invalid wait produced steps %v", res.Steps)
				}
				return
			}
			if len(res.Steps) != 3 {
				t.Fatalf("got %d steps, want 3", len(res.Steps))
			}
			iv, ok := res.Steps[1].(timeline.Interval)
			if !ok || iv.Seconds != tt.wantSecs {
				t.Errorf("middle step = %v, want interval %v", res.Steps[1], tt.wantSecs)
			}
			fireAll(res.Steps)
			if strings.Join(voice.calls, ",") != "stop,resume" {
				t.Errorf("voice calls = %v, want [stop resume]", voice.calls)
			}
		})
	}
}

func TestVoice(t *testing.T) {
	tests := []struct {
		name      string
		attr      markup.Attribute
		wantCall  string
		wantDelay bool
		wantWarn  bool
	}{
		{"default", attr("voice", 3, prop("default", markup.BoolValue(true))), "play", false, false},
		{"default with int value", attr("voice", 3, prop("default", markup.IntValue(1))), "play", false, false},
		{"speed at start", attr("voice", 0, prop("speed", markup.IntValue(4))), "periodic:||||", true, false},
		{"mute", attr("voice", 2, prop("mute", markup.BoolValue(true))), "mute", false, false},
		{"unmute", attr("voice", 2, prop("mute", markup.BoolValue(false))), "unmute", false, false},
		{"none", attr("voice", 2), "", false, true},
		{"ambiguous", attr("voice", 2, prop("default", markup.BoolValue(true)), prop("speed", markup.IntValue(3))), "", false, true},
		{"speed not int", attr("voice", 2, prop("speed", markup.FloatValue(1.5))), "", false, true},
		{"speed zero", attr("voice", 2, prop("speed", markup.IntValue(0))), "", false, true},
		{"mute not bool", attr("voice", 2, prop("mute", markup.StringValue("yes"))), "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w warnings
			voice := &fakeVoice{}
			res := Voice{}.Run(w.ctx(voice), tt.attr, 10)
			if !res.Continue {
				t.Error("Voice must continue parsing")
			}
			if (len(w) > 0) != tt.wantWarn {
				t.Errorf("warnings = %v, want warning: %v", w, tt.wantWarn)
			}
			if tt.wantWarn {
				if len(res.Steps) != 0 {
					t.Errorf("invalid voice produced steps %v", res.Steps)
				}
				return
			}

			first := res.Steps[0]
			iv, delayed := first.(timeline.Interval)
			if delayed != tt.wantDelay {
				t.Errorf("leading interval = %v, want %v", delayed, tt.wantDelay)
			}
			if delayed && (iv.Seconds <= 0 || iv.Seconds != StartupDelay) {
				t.Errorf("startup delay = %v, want %v", iv.Seconds, StartupDelay)
			}
			if len(voice.calls) != 0 {
				t.Error("voice touched at build time")
			}
			fireAll(res.Steps)
			if len(voice.calls) != 1 || voice.calls[0] != tt.wantCall {
				t.Errorf("voice calls = %v, want [%s]", voice.calls, tt.wantCall)
			}
		})
	}
}

func TestWarnFallsBackToStandardLogger(t *testing.T) {
	lc := testutil.NewLogCapture()
	lc.Start()
	defer lc.Stop()

	SetRate{}.Run(Context{DefaultRate: 30}, attr("cps", 7), 10)

	if !lc.ContainsAll("[WARN]", "cps at 7", "missing rate") {
		t.Errorf("log output = %q", lc.String())
	}
}

func TestNilVoiceIsSafe(t *testing.T) {
	var w warnings
	res := Wait{}.Run(w.ctx(nil), attr("w", 1, prop("w", markup.FloatValue(0.2))), 10)
	fireAll(res.Steps)
	res = Voice{}.Run(w.ctx(nil), attr("voice", 1, prop("default", markup.BoolValue(true))), 10)
	fireAll(res.Steps)
	res = Terminate{}.Run(w.ctx(nil), attr("done", 1, prop("nw", markup.BoolValue(true))), 10)
	fireAll(res.Steps)
}
