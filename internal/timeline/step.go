package timeline

import (
	"fmt"
	"math"
	"time"
)

// Step is one entry of a timeline plan: a Segment, an Interval or a Callback.
type Step interface {
	Duration() time.Duration
	isStep()
}

// Segment reveals characters [Start, End) at Rate characters per second.
type Segment struct {
	Start int
	End   int
	Rate  int
}

// Duration is (End-Start)/Rate seconds. A Segment with a non-positive rate or
// an empty range takes no time.
func (s Segment) Duration() time.Duration {
	if s.Rate <= 0 || s.End <= s.Start {
		return 0
	}
	return time.Duration(int64(s.End-s.Start) * int64(time.Second) / int64(s.Rate))
}

// RevealAt returns the reveal count after d has elapsed inside the segment.
func (s Segment) RevealAt(d time.Duration) int {
	total := s.Duration()
	if total <= 0 || d >= total {
		return s.End
	}
	if d <= 0 {
		return s.Start
	}
	progress := float64(d) / float64(total)
	return s.Start + int(math.Round(float64(s.End-s.Start)*progress))
}

func (s Segment) String() string {
	return fmt.Sprintf("segment[%d,%d)@%d", s.Start, s.End, s.Rate)
}

func (Segment) isStep() {}

// MaxInterval is the longest pause an Interval can hold.
const MaxInterval = time.Hour

// Interval is a pause with nothing revealed.
type Interval struct {
	Seconds float64
}

// Duration converts Seconds, clamped to [0, MaxInterval]. NaN counts as zero.
func (i Interval) Duration() time.Duration {
	if math.IsNaN(i.Seconds) || i.Seconds <= 0 {
		return 0
	}
	if i.Seconds >= MaxInterval.Seconds() {
		return MaxInterval
	}
	return time.Duration(math.Round(i.Seconds * float64(time.Second)))
}

func (i Interval) String() string {
	return fmt.Sprintf("interval(%gs)", i.Seconds)
}

func (Interval) isStep() {}

// Callback is a zero-duration side effect fired when the playhead reaches it.
type Callback struct {
	Label string
	Fn    func()
}

// Duration is always zero.
func (Callback) Duration() time.Duration { return 0 }

func (c Callback) String() string {
	return "callback(" + c.Label + ")"
}

func (c Callback) fire() {
	if c.Fn != nil {
		c.Fn()
	}
}

func (Callback) isStep() {}
