// Package lint checks script lines for markup the engine would skip or
// reject, and for text whose language does not match the configured locale.
package lint

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/markup"
	"github.com/tiroq/linereveal/internal/script"
)

// Finding kinds.
const (
	KindSyntax   = "syntax"
	KindUnknown  = "unknown-attribute"
	KindInvalid  = "invalid-command"
	KindLanguage = "language"
)

// MinLetters is the shortest text, in letters, whose language is checked.
const MinLetters = 12

// Finding is one problem on one line.
type Finding struct {
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("line %d: %s: %s", f.Line, f.Kind, f.Message)
}

// Linter checks lines against a command registry and a locale.
type Linter struct {
	reg    *command.Registry
	locale language.Tag
	base   language.Base
}

// New returns a linter for locale.
func New(reg *command.Registry, locale string) (*Linter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	base, _ := tag.Base()
	return &Linter{reg: reg, locale: tag, base: base}, nil
}

// Script lints every line in order.
func (l *Linter) Script(lines []script.Line) []Finding {
	var out []Finding
	for _, line := range lines {
		out = append(out, l.Line(line)...)
	}
	return out
}

// Line lints one line.
func (l *Linter) Line(line script.Line) []Finding {
	var out []Finding
	add := func(kind, format string, args ...any) {
		out = append(out, Finding{Line: line.Number, Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	parsed, err := markup.Parse(line.Text)
	if err != nil {
		add(KindSyntax, "%v", err)
		return out
	}

	for _, attr := range parsed.Attributes {
		if !l.reg.Exists(attr.Name) {
			add(KindUnknown, "[%s] at %d has no command", attr.Name, attr.Position)
		}
	}

	b := builder.New(l.reg, builder.WithWarnFunc(func(attr markup.Attribute, reason string) {
		if l.reg.Exists(attr.Name) {
			add(KindInvalid, "[%s] at %d: %s", attr.Name, attr.Position, reason)
		}
	}))
	// Any positive rate will do; only the warnings are kept.
	if _, err := b.Build(builder.Input{
		Text:        parsed.Text,
		Attributes:  parsed.Attributes,
		DefaultRate: 1,
		Locale:      l.locale.String(),
		Line:        line.Number,
	}); err != nil && !errors.Is(err, builder.ErrNoRate) {
		add(KindInvalid, "%v", err)
	}

	if lang, ok := l.detect(parsed.Text); ok {
		add(KindLanguage, "text reads as %s, locale is %s", lang, l.locale)
	}
	return out
}

// detect reports the language of text when it is reliably detected and
// differs from the locale's.
func (l *Linter) detect(text string) (string, bool) {
	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
	if utf8.RuneCountInString(strings.Join(strings.Fields(letters), "")) < MinLetters {
		return "", false
	}

	info := whatlanggo.Detect(letters)
	if !info.IsReliable() {
		return "", false
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", false
	}
	detected, err := language.ParseBase(code)
	if err != nil || detected == l.base {
		return "", false
	}
	return info.Lang.String(), true
}
