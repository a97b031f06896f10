// Package console shows lines on a terminal and stands in for the audio
// device by logging what would play.
package console

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/tiroq/linereveal/internal/voice"
)

const eraseLine = "\r\033[2K"

// Display prints revealed characters as they appear. With ANSI output a
// dismissed line is erased; without it the line is cut short.
type Display struct {
	mu   sync.Mutex
	w    io.Writer
	ansi bool

	speaker string
	text    []rune
	shown   int
	started bool
	done    bool
}

// NewDisplay writes to w.
func NewDisplay(w io.Writer, ansi bool) *Display {
	return &Display{w: w, ansi: ansi}
}

// SetText starts a new line, ending the previous one if it was cut off.
func (d *Display) SetText(speaker, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started && !d.done {
		fmt.Fprintln(d.w)
	}
	d.speaker = speaker
	d.text = []rune(text)
	d.shown = 0
	d.started = false
	d.done = false
}

// SetRevealCount shows the first n characters.
func (d *Display) SetRevealCount(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(d.text) {
		n = len(d.text)
	}

	switch {
	case d.done:
		return
	case n > d.shown:
		if !d.started {
			if d.speaker != "" {
				fmt.Fprintf(d.w, "%s: ", d.speaker)
			}
			d.started = true
		}
		io.WriteString(d.w, string(d.text[d.shown:n]))
		d.shown = n
		if n == len(d.text) {
			fmt.Fprintln(d.w)
			d.done = true
		}
	case n < d.shown:
		if d.ansi {
			io.WriteString(d.w, eraseLine)
		} else {
			fmt.Fprintln(d.w)
		}
		d.shown = n
		d.done = true
	}
}

// Audio is a voice.AudioSink that logs instead of playing.
type Audio struct {
	mu       sync.Mutex
	log      *log.Logger
	clip     voice.Clip
	muted    bool
	playing  bool
	oneShots int
}

// NewAudio logs to l.
func NewAudio(l *log.Logger) *Audio {
	return &Audio{log: l}
}

func (a *Audio) SetClip(c voice.Clip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clip = c
	a.log.Printf("[AUDIO] clip %s (%s)", c.Name, c.Path)
}

func (a *Audio) Play(loop bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = loop
	a.log.Printf("[AUDIO] play %s loop=%t%s", a.clip.Name, loop, a.mutedSuffix())
}

func (a *Audio) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = false
	a.log.Printf("[AUDIO] stop %s", a.clip.Name)
}

func (a *Audio) PlayOneShot() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.oneShots++
	a.log.Printf("[AUDIO] blip %s%s", a.clip.Name, a.mutedSuffix())
}

func (a *Audio) SetMute(muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.muted != muted {
		a.log.Printf("[AUDIO] mute=%t", muted)
	}
	a.muted = muted
}

// Playing reports whether a loop is running.
func (a *Audio) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// OneShots counts every one-shot played.
func (a *Audio) OneShots() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.oneShots
}

func (a *Audio) mutedSuffix() string {
	if a.muted {
		return " (muted)"
	}
	return ""
}
