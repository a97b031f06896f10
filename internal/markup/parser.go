package markup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// richTags are the presentation tags stripped from the display text. Anything
// else in angle brackets is shown literally, as the renderer would.
var richTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "sup": true, "sub": true,
	"color": true, "size": true, "font": true, "mark": true, "alpha": true,
	"style": true, "link": true, "material": true, "lowercase": true,
	"uppercase": true, "smallcaps": true, "cspace": true, "mspace": true,
	"voffset": true, "align": true, "indent": true, "line-height": true,
	"line-indent": true, "margin": true, "nobr": true, "rotate": true,
	"pos": true, "width": true, "gradient": true, "allcaps": true,
	"br": true, "sprite": true,
}

// implicitSpeaker matches the "Name: " prefix a line may start with.
var implicitSpeaker = regexp.MustCompile(`^\s*([^:\[\]<>\\\n]*[^:\[\]<>\\\n\s])\s*:\s*`)

const nomarkupTag = "nomarkup"

// Parse splits raw into display text and point attributes. Attribute
// positions are rune offsets into the returned Text.
func Parse(raw string) (Result, error) {
	p := &parser{src: []rune(raw)}

	if m := implicitSpeaker.FindStringSubmatchIndex(raw); m != nil {
		p.speaker = raw[m[2]:m[3]]
		p.pos = len([]rune(raw[:m[1]]))
	}

	if err := p.run(); err != nil {
		return Result{}, err
	}

	return Result{
		Text:       string(p.out),
		Attributes: p.attrs,
		SpeakerID:  p.speaker,
	}, nil
}

type parser struct {
	src     []rune
	pos     int
	out     []rune
	attrs   []Attribute
	speaker string

	nomarkup bool

	// open [character] range
	charOpen  bool
	charStart int
	charAttrs int
}

func (p *parser) run() error {
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if p.nomarkup {
			p.verbatim()
			continue
		}
		switch {
		case r == '\\' && p.pos+1 < len(p.src) && isEscapable(p.src[p.pos+1]):
			p.out = append(p.out, p.src[p.pos+1])
			p.pos += 2
		case r == '<':
			p.richTag()
		case r == '[':
			if err := p.markupTag(); err != nil {
				return err
			}
		default:
			p.out = append(p.out, r)
			p.pos++
		}
	}
	if p.charOpen {
		return fmt.Errorf("%w: unclosed [%s] tag", ErrSyntax, CharacterAttribute)
	}
	return nil
}

// verbatim copies one rune of a [nomarkup] body, or consumes its close tag.
func (p *parser) verbatim() {
	closeTag := []rune("[/" + nomarkupTag + "]")
	if p.pos+len(closeTag) <= len(p.src) && strings.EqualFold(string(p.src[p.pos:p.pos+len(closeTag)]), string(closeTag)) {
		p.nomarkup = false
		p.pos += len(closeTag)
		return
	}
	p.out = append(p.out, p.src[p.pos])
	p.pos++
}

func isEscapable(r rune) bool {
	return r == '[' || r == ']' || r == '\\'
}

// richTag consumes a presentation tag if it is one the renderer understands,
// otherwise emits '<' as text.
func (p *parser) richTag() {
	end := -1
	for i := p.pos + 1; i < len(p.src); i++ {
		if p.src[i] == '>' {
			end = i
			break
		}
		if p.src[i] == '<' || p.src[i] == '\n' {
			break
		}
	}
	if end < 0 {
		p.out = append(p.out, '<')
		p.pos++
		return
	}

	body := string(p.src[p.pos+1 : end])
	name := strings.TrimPrefix(body, "/")
	if strings.HasPrefix(name, "#") {
		name = "color"
	}
	if i := strings.IndexAny(name, "= "); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)

	if !richTags[name] {
		p.out = append(p.out, '<')
		p.pos++
		return
	}

	closing := strings.HasPrefix(body, "/")
	switch {
	case name == "br" && !closing:
		p.out = append(p.out, '\n')
	case name == "sprite" && !closing:
		// a sprite occupies one rendered character
		p.out = append(p.out, '\uFFFC')
	}
	p.pos = end + 1
}

// markupTag consumes one square-bracket tag starting at p.pos.
func (p *parser) markupTag() error {
	start := p.pos
	end, err := p.findTagEnd()
	if err != nil {
		return err
	}
	body := strings.TrimSpace(string(p.src[start+1 : end]))
	p.pos = end + 1

	if name, ok := closeTagName(body); ok {
		if name == CharacterAttribute && p.charOpen {
			p.out = p.out[:p.charStart]
			p.attrs = p.attrs[:p.charAttrs]
			p.charOpen = false
		}
		return nil
	}

	selfClosing := strings.HasSuffix(body, "/")
	body = strings.TrimSpace(strings.TrimSuffix(body, "/"))

	attr, err := parseAttribute(body)
	if err != nil {
		return fmt.Errorf("%w: tag %q at offset %d: %v", ErrSyntax, string(p.src[start:end+1]), start, err)
	}
	attr.Position = len(p.out)

	switch strings.ToLower(attr.Name) {
	case nomarkupTag:
		if !selfClosing {
			p.nomarkup = true
		}
		return nil
	case CharacterAttribute:
		if v, ok := attr.Prop("name"); ok {
			p.speaker = v.String()
		}
		if !selfClosing {
			p.charOpen = true
			p.charStart = len(p.out)
			p.charAttrs = len(p.attrs)
		}
		return nil
	}

	p.attrs = append(p.attrs, attr)
	return nil
}

// findTagEnd returns the index of the ']' closing the tag at p.pos, skipping
// quoted strings.
func (p *parser) findTagEnd() (int, error) {
	inQuote := false
	for i := p.pos + 1; i < len(p.src); i++ {
		switch r := p.src[i]; {
		case r == '\\' && inQuote:
			i++
		case r == '"':
			inQuote = !inQuote
		case r == '[' && !inQuote:
			return 0, fmt.Errorf("%w: nested '[' at offset %d", ErrSyntax, i)
		case r == ']' && !inQuote:
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated tag at offset %d", ErrSyntax, p.pos)
}

func closeTagName(body string) (string, bool) {
	if !strings.HasPrefix(body, "/") {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(body[1:])), true
}

// parseAttribute parses `name`, `name=value` or `name key=value key2 ...`.
func parseAttribute(body string) (Attribute, error) {
	toks, err := tokenize(body)
	if err != nil {
		return Attribute{}, err
	}
	if len(toks) == 0 {
		return Attribute{}, fmt.Errorf("empty tag")
	}

	var attr Attribute
	head := toks[0]
	name, shorthand, hasShorthand := strings.Cut(head, "=")
	if !validName(name) {
		return Attribute{}, fmt.Errorf("invalid attribute name %q", name)
	}
	attr.Name = name
	if hasShorthand {
		v, err := parseValue(shorthand)
		if err != nil {
			return Attribute{}, err
		}
		attr.Properties = append(attr.Properties, Property{Name: name, Value: v})
	}

	for _, tok := range toks[1:] {
		key, raw, hasValue := strings.Cut(tok, "=")
		if !validName(key) {
			return Attribute{}, fmt.Errorf("invalid property name %q", key)
		}
		// a bare key is a flag
		v := BoolValue(true)
		if hasValue {
			if v, err = parseValue(raw); err != nil {
				return Attribute{}, err
			}
		}
		attr.Properties = append(attr.Properties, Property{Name: key, Value: v})
	}
	return attr, nil
}

// tokenize splits on whitespace outside quotes and around '='.
func tokenize(body string) ([]string, error) {
	var toks []string
	var cur strings.Builder
	inQuote := false
	rs := []rune(body)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\' && inQuote && i+1 < len(rs):
			cur.WriteRune(r)
			cur.WriteRune(rs[i+1])
			i++
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !inQuote:
			// "key = value" is folded into one token
			if cur.Len() > 0 && !strings.HasSuffix(cur.String(), "=") && !nextIsEquals(rs, i) {
				toks = append(toks, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string")
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks, nil
}

func nextIsEquals(rs []rune, i int) bool {
	for j := i; j < len(rs); j++ {
		if unicode.IsSpace(rs[j]) {
			continue
		}
		return rs[j] == '='
	}
	return false
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func parseValue(raw string) (Value, error) {
	if raw == "" {
		return Value{}, fmt.Errorf("missing value")
	}
	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return Value{}, fmt.Errorf("bad string %s", raw)
		}
		return StringValue(s), nil
	}
	switch strings.ToLower(raw) {
	case "true":
		return BoolValue(true), nil
	case "false":
		return BoolValue(false), nil
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return IntValue(i), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return FloatValue(f), nil
	}
	return StringValue(raw), nil
}
