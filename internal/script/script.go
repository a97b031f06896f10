// Package script loads dialogue lines from plain-text or YAML script files.
package script

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TagNoVoice suppresses the voice channel for a line.
const TagNoVoice = "no_voice"

// Line is one line of dialogue as written in a script.
type Line struct {
	Number  int      `yaml:"-"`
	Text    string   `yaml:"text"`
	Speaker string   `yaml:"speaker,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
}

// HasTag reports whether the line carries tag.
func (l Line) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

type yamlScript struct {
	Lines []Line `yaml:"lines"`
}

// Load reads the script at path. Files ending in .yaml or .yml hold a
// "lines" list; anything else is read as one line per row.
func Load(path string) ([]Line, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	data, err := ToUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode script %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseText(data)
	}
}

// ParseYAML parses a YAML script.
func ParseYAML(data []byte) ([]Line, error) {
	var s yamlScript
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	lines := s.Lines[:0]
	for i, l := range s.Lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		l.Number = i + 1
		lines = append(lines, l)
	}
	return lines, nil
}

// ParseText parses a plain-text script. Blank rows and rows starting with
// "//" are skipped; trailing "#tag" words become tags.
func ParseText(data []byte) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || strings.HasPrefix(row, "//") {
			continue
		}
		text, tags := splitTags(row)
		lines = append(lines, Line{Number: n, Text: text, Tags: tags})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return lines, nil
}

func splitTags(row string) (string, []string) {
	fields := strings.Fields(row)
	cut := len(fields)
	for cut > 1 && isTag(fields[cut-1]) {
		cut--
	}
	if cut == len(fields) {
		return row, nil
	}

	tags := make([]string, 0, len(fields)-cut)
	for _, f := range fields[cut:] {
		tags = append(tags, strings.TrimPrefix(f, "#"))
	}

	// keep the text's own spacing up to the first tag
	text := row
	for i := len(fields) - 1; i >= cut; i-- {
		text = strings.TrimSpace(strings.TrimSuffix(text, fields[i]))
	}
	return text, tags
}

func isTag(field string) bool {
	if len(field) < 2 || field[0] != '#' {
		return false
	}
	for _, r := range field[1:] {
		if !(r == '_' || r == '-' || r == ':' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
