package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/script"
)

var opts = Options{Locale: "en-US", DefaultRate: 10}

func TestPlanLine(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     []Cue
		duration time.Duration
	}{
		{
			name:     "single segment",
			text:     "Hello",
			want:     []Cue{{Start: 0, End: 1500 * time.Millisecond, Text: "Hello", Reveal: 5}},
			duration: 1500 * time.Millisecond,
		},
		{
			name: "pause extends the cue before it",
			text: "Hello[w=1/] world",
			want: []Cue{
				{Start: 0, End: 1500 * time.Millisecond, Text: "Hello", Reveal: 5},
				{Start: 1500 * time.Millisecond, End: 3100 * time.Millisecond, Text: "Hello world", Reveal: 11},
			},
			duration: 3100 * time.Millisecond,
		},
		{
			name:     "fast forward starts revealed",
			text:     "Skip[fast/] this",
			want:     []Cue{{Start: 0, End: 1500 * time.Millisecond, Text: "Skip this", Reveal: 9}},
			duration: 1500 * time.Millisecond,
		},
		{
			name:     "done cuts the plan",
			text:     "Hi![done/] unseen",
			want:     []Cue{{Start: 0, End: 1300 * time.Millisecond, Text: "Hi!", Reveal: 3}},
			duration: 1300 * time.Millisecond,
		},
		{
			name:     "empty line",
			text:     "",
			want:     nil,
			duration: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanLine(command.Builtin(), script.Line{Number: 1, Text: tt.text}, opts)
			if err != nil {
				t.Fatalf("PlanLine() error: %v", err)
			}
			if plan.Duration != tt.duration {
				t.Errorf("Duration = %v, want %v", plan.Duration, tt.duration)
			}
			if len(plan.Cues) != len(tt.want) {
				t.Fatalf("got %d cues, want %d: %+v", len(plan.Cues), len(tt.want), plan.Cues)
			}
			for i, want := range tt.want {
				got := plan.Cues[i]
				if got.Start != want.Start || got.End != want.End || got.Text != want.Text || got.Reveal != want.Reveal {
					t.Errorf("cue %d = %+v, want %+v", i, got, want)
				}
			}
		})
	}
}

func TestPlanLineSpeakerAndWarnings(t *testing.T) {
	plan, err := PlanLine(command.Builtin(), script.Line{Number: 4, Text: "Mae: [cps=fast/]Hi"}, opts)
	if err != nil {
		t.Fatalf("PlanLine() error: %v", err)
	}
	if len(plan.Cues) != 1 || plan.Cues[0].Speaker != "Mae" || plan.Cues[0].Line != 4 {
		t.Errorf("cues = %+v", plan.Cues)
	}
	if len(plan.Warnings) != 1 || !strings.Contains(plan.Warnings[0], "[cps] at 0") {
		t.Errorf("Warnings = %q", plan.Warnings)
	}
}

func TestPlanLineMarkupFallback(t *testing.T) {
	plan, err := PlanLine(command.Builtin(), script.Line{Number: 1, Text: "Hello [w=1"}, opts)
	if err != nil {
		t.Fatalf("PlanLine() error: %v", err)
	}
	if len(plan.Warnings) != 1 || plan.Cues[0].Text != "Hello [w=1" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestPlanLineNoRate(t *testing.T) {
	_, err := PlanLine(command.Builtin(), script.Line{Number: 9, Text: "Hi"}, Options{Locale: "en-US"})
	if !errors.Is(err, builder.ErrNoRate) {
		t.Errorf("PlanLine() error = %v, want ErrNoRate", err)
	}
}

func TestPlanScriptLaysLinesEndToEnd(t *testing.T) {
	lines := []script.Line{
		{Number: 1, Text: "Hi"},
		{Number: 2, Text: "Rook: Yo[w=0.5/]!"},
		{Number: 3, Text: "Bye"},
	}
	plans, err := PlanScript(context.Background(), command.Builtin(), lines, Options{Locale: "en-US", DefaultRate: 10, Workers: 2})
	if err != nil {
		t.Fatalf("PlanScript() error: %v", err)
	}
	cues := Cues(plans)
	if len(cues) != 4 {
		t.Fatalf("got %d cues, want 4: %+v", len(cues), cues)
	}

	wantStarts := []time.Duration{0, 1200 * time.Millisecond, 1900 * time.Millisecond, 3000 * time.Millisecond}
	for i, want := range wantStarts {
		if cues[i].Start != want {
			t.Errorf("cue %d starts at %v, want %v", i, cues[i].Start, want)
		}
	}
	for i := 1; i < len(cues); i++ {
		if cues[i].Start != cues[i-1].End {
			t.Errorf("gap between cue %d and %d", i-1, i)
		}
	}
}

func TestPlanScriptFailsOnBadLine(t *testing.T) {
	_, err := PlanScript(context.Background(), command.Builtin(), []script.Line{{Number: 1, Text: "Hi"}}, Options{})
	if !errors.Is(err, builder.ErrNoRate) {
		t.Errorf("PlanScript() error = %v, want ErrNoRate", err)
	}
}

func TestPlanScriptCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PlanScript(ctx, command.Builtin(), []script.Line{{Number: 1, Text: "Hi"}}, opts); !errors.Is(err, context.Canceled) {
		t.Errorf("PlanScript() error = %v, want context.Canceled", err)
	}
}

func sampleCues() []Cue {
	return []Cue{
		{Line: 1, Speaker: "Mae", Start: 0, End: 1500 * time.Millisecond, Text: "Hello", Reveal: 5},
		{Line: 1, Speaker: "Mae", Start: 1500 * time.Millisecond, End: 3100 * time.Millisecond, Text: "Hello world", Reveal: 11},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatText, sampleCues()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "[00:00:00.000 --> 00:00:01.500] #1 Mae: Hello\n") {
		t.Errorf("missing first cue; got:\n%s", got)
	}
	if !strings.Contains(got, "[00:00:01.500 --> 00:00:03.100] #1 Mae: Hello world\n") {
		t.Errorf("missing second cue; got:\n%s", got)
	}
}

func TestWriteSRTReadsBack(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatSRT, sampleCues()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	subs, err := astisub.ReadFromSRT(&buf)
	if err != nil {
		t.Fatalf("ReadFromSRT() error: %v", err)
	}
	if len(subs.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(subs.Items))
	}
	second := subs.Items[1]
	if second.StartAt != 1500*time.Millisecond || second.EndAt != 3100*time.Millisecond {
		t.Errorf("second item timing = %v --> %v", second.StartAt, second.EndAt)
	}
	if got := second.Lines[0].Items[0].Text; got != "Hello world" {
		t.Errorf("second item text = %q", got)
	}
}

func TestWriteVTT(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatVTT, sampleCues()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "WEBVTT") {
		t.Errorf("VTT should start with header; got:\n%s", got)
	}
	if !strings.Contains(got, "00:00:01.500 --> 00:00:03.100") {
		t.Errorf("missing cue timing; got:\n%s", got)
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "ass", sampleCues()); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteAll(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out", "plan")
	if err := WriteAll(base, sampleCues(), []string{FormatText, FormatSRT, FormatVTT}); err != nil {
		t.Fatalf("WriteAll() error: %v", err)
	}
	for _, ext := range []string{".txt", ".srt", ".vtt"} {
		if _, err := os.Stat(base + ext); err != nil {
			t.Errorf("missing %s output: %v", ext, err)
		}
	}

	err := WriteAll(base, sampleCues(), []string{"txt", "doc"})
	if err == nil || !strings.Contains(err.Error(), `unknown format "doc"`) {
		t.Errorf("WriteAll() error = %v", err)
	}
}
