// Package export renders the reveal plan of a whole script as timed cues,
// for review in a subtitle player or as a plain-text timing sheet.
package export

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/script"
	"github.com/tiroq/linereveal/internal/timeline"
)

// DefaultHold is how long a fully revealed line stays up before the next.
const DefaultHold = time.Second

// Cue is the text visible on screen from Start to End.
type Cue struct {
	Line    int
	Speaker string
	Start   time.Duration
	End     time.Duration
	Text    string
	// Reveal is the number of characters of the line Text shows.
	Reveal int
}

// Options control planning.
type Options struct {
	Locale      string
	DefaultRate int
	// Hold is added after every line; zero means DefaultHold.
	Hold time.Duration
	// Workers bounds concurrent line planning; zero means GOMAXPROCS.
	Workers int
}

func (o Options) hold() time.Duration {
	if o.Hold > 0 {
		return o.Hold
	}
	return DefaultHold
}

// LinePlan is the cue list of one line, timed from the line's start.
type LinePlan struct {
	Line     script.Line
	Cues     []Cue
	Duration time.Duration
	// Warnings collects attribute and markup problems found while planning.
	Warnings []string
}

// PlanLine builds the timeline of line and samples it into cues. Each
// segment becomes one cue showing the text revealed by its end; pauses
// extend the cue before them.
func PlanLine(reg *command.Registry, line script.Line, opts Options) (LinePlan, error) {
	plan := LinePlan{Line: line}

	parsed, err := markup.Parse(line.Text)
	if err != nil {
		plan.Warnings = append(plan.Warnings, err.Error())
		parsed = markup.Result{Text: line.Text}
	}
	speaker := line.Speaker
	if speaker == "" {
		speaker = parsed.SpeakerID
	}

	b := builder.New(reg, builder.WithWarnFunc(func(attr markup.Attribute, reason string) {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("[%s] at %d: %s", attr.Name, attr.Position, reason))
	}))
	tl, err := b.Build(builder.Input{
		Text:        parsed.Text,
		Attributes:  parsed.Attributes,
		DefaultRate: opts.DefaultRate,
		Locale:      opts.Locale,
		Line:        line.Number,
	})
	if err != nil {
		return plan, fmt.Errorf("line %d: %w", line.Number, err)
	}

	runes := []rune(parsed.Text)
	add := func(at time.Duration, reveal int) {
		c := Cue{Line: line.Number, Speaker: speaker, Start: at, Text: string(runes[:reveal]), Reveal: reveal}
		if n := len(plan.Cues); n > 0 && plan.Cues[n-1].Start == at {
			plan.Cues[n-1] = c
			return
		}
		plan.Cues = append(plan.Cues, c)
	}

	if tl.StartAt() > 0 {
		add(0, tl.StartAt())
	}
	var at time.Duration
	for _, s := range tl.Steps() {
		d := s.Duration()
		if seg, ok := s.(timeline.Segment); ok && d > 0 {
			add(at, clamp(seg.End, len(runes)))
		}
		at += d
	}

	plan.Duration = at + opts.hold()
	for i := range plan.Cues {
		if i+1 < len(plan.Cues) {
			plan.Cues[i].End = plan.Cues[i+1].Start
		} else {
			plan.Cues[i].End = plan.Duration
		}
	}
	return plan, nil
}

// PlanScript plans every line concurrently and lays the lines end to end.
// A line that cannot be planned fails the whole script.
func PlanScript(ctx context.Context, reg *command.Registry, lines []script.Line, opts Options) ([]LinePlan, error) {
	plans := make([]LinePlan, len(lines))

	g, ctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for i, line := range lines {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := PlanLine(reg, line, opts)
			if err != nil {
				return err
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var offset time.Duration
	for i := range plans {
		for j := range plans[i].Cues {
			plans[i].Cues[j].Start += offset
			plans[i].Cues[j].End += offset
		}
		offset += plans[i].Duration
	}
	return plans, nil
}

// Cues flattens plans into one ordered cue list.
func Cues(plans []LinePlan) []Cue {
	var out []Cue
	for _, p := range plans {
		out = append(out, p.Cues...)
	}
	return out
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
