package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
)

// Formats accepted by Write.
const (
	FormatText = "txt"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

// Write renders cues in format to w.
func Write(w io.Writer, format string, cues []Cue) error {
	switch format {
	case FormatText:
		return WriteText(w, cues)
	case FormatSRT:
		return subtitles(cues).WriteToSRT(w)
	case FormatVTT:
		return subtitles(cues).WriteToWebVTT(w)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteText writes one row per cue: start and end as HH:MM:SS.mmm, the line
// number, then the speaker and revealed text.
func WriteText(w io.Writer, cues []Cue) error {
	for _, c := range cues {
		text := strings.ReplaceAll(displayText(c.Text), "\n", " / ")
		if c.Speaker != "" {
			text = c.Speaker + ": " + text
		}
		if _, err := fmt.Fprintf(w, "[%s --> %s] #%d %s\n", formatTimestamp(c.Start), formatTimestamp(c.End), c.Line, text); err != nil {
			return err
		}
	}
	return nil
}

// subtitles converts cues to astisub items. Embedded line breaks become
// separate subtitle lines; the speaker is carried as the WebVTT voice.
func subtitles(cues []Cue) *astisub.Subtitles {
	s := astisub.NewSubtitles()
	for _, c := range cues {
		item := &astisub.Item{StartAt: c.Start, EndAt: c.End}
		for _, row := range strings.Split(displayText(c.Text), "\n") {
			item.Lines = append(item.Lines, astisub.Line{
				VoiceName: c.Speaker,
				Items:     []astisub.LineItem{{Text: row}},
			})
		}
		s.Items = append(s.Items, item)
	}
	return s
}

// displayText drops inline sprite placeholders.
func displayText(s string) string {
	return strings.ReplaceAll(s, "\uFFFC", "")
}

// WriteFile renders cues to path atomically.
func WriteFile(path, format string, cues []Cue) error {
	var buf bytes.Buffer
	if err := Write(&buf, format, cues); err != nil {
		return err
	}
	return atomicWrite(path, buf.Bytes())
}

// WriteAll writes cues in every requested format. basePath is the file path
// without extension. If formats is empty, defaults to ["txt"]. Returns a
// combined error listing all failures.
func WriteAll(basePath string, cues []Cue, formats []string) error {
	if len(formats) == 0 {
		formats = []string{FormatText}
	}
	var errs []string
	for _, f := range formats {
		if err := WriteFile(basePath+"."+f, f, cues); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("plan write errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// formatTimestamp formats a duration as HH:MM:SS.mmm.
func formatTimestamp(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// atomicWrite writes data to path atomically using a temp file + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "plan-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing plan: %w", err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming plan: %w", err)
	}
	return nil
}
