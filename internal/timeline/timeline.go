// Package timeline holds the playable reveal plan for one dialogue line and
// the state machine that plays it against a host tick.
package timeline

import (
	"errors"
	"time"
)

// ErrFinished is returned by Play on a completed or killed timeline.
var ErrFinished = errors.New("timeline already finished")

// State of a timeline.
type State int

const (
	Idle State = iota
	Playing
	Completed
	Killed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Completed:
		return "completed"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Live reports whether the timeline can still produce output.
func (s State) Live() bool {
	return s == Idle || s == Playing
}

// Display receives the number of visible characters.
type Display interface {
	SetRevealCount(n int)
}

// Timeline is an ordered plan of segments, pauses and callbacks. It is not
// safe for concurrent use; the host tick and the owner must share a goroutine.
type Timeline struct {
	length  int
	display Display

	steps      []Step
	onComplete []func()
	onAbandon  []func()

	state   State
	startAt int
	reveal  int
	pushed  bool

	cursor      int           // index of the step in progress
	stepElapsed time.Duration // time spent inside steps[cursor]
	elapsed     time.Duration
}

// New returns an idle timeline for a display text of length characters.
// display may be nil.
func New(length int, display Display) *Timeline {
	if length < 0 {
		length = 0
	}
	return &Timeline{
		length:  length,
		display: display,
	}
}

// Append adds a step at the end of the plan.
func (t *Timeline) Append(s Step) {
	t.steps = append(t.steps, s)
}

// Prepend inserts a callback ahead of every other step.
func (t *Timeline) Prepend(c Callback) {
	t.steps = append([]Step{c}, t.steps...)
}

// OnComplete registers fn to run when the timeline completes, naturally or
// through CompleteImmediately.
func (t *Timeline) OnComplete(fn func()) {
	t.onComplete = append(t.onComplete, fn)
}

// OnAbandon registers fn to run when the timeline is killed. Pending
// callbacks are dropped on Kill; abandon hooks are where cleanup belongs.
func (t *Timeline) OnAbandon(fn func()) {
	t.onAbandon = append(t.onAbandon, fn)
}

// Reset discards every step and makes the timeline start with startAt
// characters already visible. Only valid before Play.
func (t *Timeline) Reset(startAt int) {
	if t.state != Idle {
		return
	}
	t.steps = nil
	t.startAt = t.clamp(startAt)
}

// Play starts the timeline. Leading zero-time steps fire immediately.
func (t *Timeline) Play() error {
	switch t.state {
	case Playing:
		return nil
	case Completed, Killed:
		return ErrFinished
	}
	t.state = Playing
	t.setReveal(t.startAt)
	t.Advance(0)
	return nil
}

// Advance moves the playhead forward by dt.
func (t *Timeline) Advance(dt time.Duration) {
	if t.state != Playing {
		return
	}
	if dt < 0 {
		dt = 0
	}
	t.elapsed += dt
	remaining := dt

	for t.cursor < len(t.steps) {
		switch s := t.steps[t.cursor].(type) {
		case Callback:
			t.cursor++
			s.fire()
			if t.state != Playing {
				return
			}
			continue
		case Segment:
			need := s.Duration() - t.stepElapsed
			if remaining < need {
				t.stepElapsed += remaining
				t.setReveal(s.RevealAt(t.stepElapsed))
				return
			}
			remaining -= need
			t.setReveal(s.End)
		default:
			need := s.Duration() - t.stepElapsed
			if remaining < need {
				t.stepElapsed += remaining
				return
			}
			remaining -= need
		}
		t.cursor++
		t.stepElapsed = 0
	}

	t.finish()
}

// CompleteImmediately fires every pending callback in order, reveals the whole
// text and completes the timeline. It reports false if the timeline had
// already finished.
func (t *Timeline) CompleteImmediately() bool {
	if !t.state.Live() {
		return false
	}
	t.state = Playing

	for t.cursor < len(t.steps) {
		s := t.steps[t.cursor]
		t.cursor++
		if c, ok := s.(Callback); ok {
			c.fire()
			if t.state != Playing {
				return true
			}
		}
	}
	t.stepElapsed = 0
	t.setReveal(t.length)
	t.finish()
	return true
}

// Kill abandons the timeline without firing pending callbacks. It reports
// false if the timeline had already finished.
func (t *Timeline) Kill() bool {
	if !t.state.Live() {
		return false
	}
	t.state = Killed
	for _, fn := range t.onAbandon {
		fn()
	}
	return true
}

func (t *Timeline) finish() {
	t.state = Completed
	for _, fn := range t.onComplete {
		fn()
	}
}

// IsPlaying reports whether the timeline is running.
func (t *Timeline) IsPlaying() bool {
	return t.state == Playing
}

// State returns the current state.
func (t *Timeline) State() State {
	return t.state
}

// Duration is the planned running time: the sum of every step's duration.
func (t *Timeline) Duration() time.Duration {
	var d time.Duration
	for _, s := range t.steps {
		d += s.Duration()
	}
	return d
}

// Elapsed is the time played so far.
func (t *Timeline) Elapsed() time.Duration {
	return t.elapsed
}

// RevealCount is the number of characters currently visible.
func (t *Timeline) RevealCount() int {
	return t.reveal
}

// StartAt is the number of characters visible when play begins.
func (t *Timeline) StartAt() int {
	return t.startAt
}

// Length is the display text length the timeline was built for.
func (t *Timeline) Length() int {
	return t.length
}

// Steps returns a copy of the plan.
func (t *Timeline) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Segments returns only the segment steps of the plan.
func (t *Timeline) Segments() []Segment {
	var out []Segment
	for _, s := range t.steps {
		if seg, ok := s.(Segment); ok {
			out = append(out, seg)
		}
	}
	return out
}

func (t *Timeline) setReveal(n int) {
	n = t.clamp(n)
	if t.pushed && n == t.reveal {
		return
	}
	t.reveal = n
	t.pushed = true
	if t.display != nil {
		t.display.SetRevealCount(n)
	}
}

func (t *Timeline) clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > t.length {
		return t.length
	}
	return n
}
