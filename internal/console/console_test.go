package console

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/tiroq/linereveal/internal/voice"
)

func TestDisplayPrintsRevealedRunes(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, false)

	d.SetText("Mae", "こんにちは")
	for _, n := range []int{0, 2, 3, 5} {
		d.SetRevealCount(n)
	}
	if got := buf.String(); got != "Mae: こんにちは\n" {
		t.Errorf("output = %q", got)
	}
}

func TestDisplayDismissPlain(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, false)

	d.SetText("", "Hello")
	d.SetRevealCount(2)
	d.SetRevealCount(0)
	d.SetRevealCount(4)
	if got := buf.String(); got != "He\n" {
		t.Errorf("output = %q, want the line cut after dismiss", got)
	}
}

func TestDisplayDismissANSI(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, true)

	d.SetText("", "Hello")
	d.SetRevealCount(3)
	d.SetRevealCount(0)
	if got := buf.String(); got != "Hel"+eraseLine {
		t.Errorf("output = %q", got)
	}
}

func TestDisplayNewLineEndsCutOffLine(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, false)

	d.SetText("A", "First")
	d.SetRevealCount(2)
	d.SetText("B", "Next")
	d.SetRevealCount(4)
	if got := buf.String(); got != "A: Fi\nB: Next\n" {
		t.Errorf("output = %q", got)
	}
}

func TestAudioLogs(t *testing.T) {
	var buf bytes.Buffer
	a := NewAudio(log.New(&buf, "", 0))

	var sink voice.AudioSink = a
	sink.SetClip(voice.Clip{Name: "mae", Path: "voices/mae.wav"})
	sink.SetMute(true)
	sink.Play(true)
	sink.PlayOneShot()
	if !a.Playing() || a.OneShots() != 1 {
		t.Errorf("Playing() = %t OneShots() = %d", a.Playing(), a.OneShots())
	}
	sink.Stop()

	got := buf.String()
	for _, want := range []string{
		"[AUDIO] clip mae (voices/mae.wav)",
		"[AUDIO] mute=true",
		"[AUDIO] play mae loop=true (muted)",
		"[AUDIO] blip mae (muted)",
		"[AUDIO] stop mae",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log missing %q; got:\n%s", want, got)
		}
	}
	if a.Playing() {
		t.Error("still playing after Stop")
	}
}
