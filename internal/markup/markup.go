// Package markup splits a raw dialogue line into the text the player sees and
// the positioned engine commands embedded in it.
//
// A raw line mixes two dialects. Angle-bracket rich-text tags (<b>, <color=..>)
// belong to the renderer and are removed here so that attribute positions
// index rendered characters. Square-bracket tags ([w=0.5/], [voice mute=true/])
// are engine commands and come back as point Attributes.
package markup

import (
	"errors"
	"fmt"
	"strconv"
)

// CharacterAttribute is the reserved attribute carrying the speaker id.
const CharacterAttribute = "character"

// ErrSyntax is returned when square-bracket markup cannot be parsed.
var ErrSyntax = errors.New("markup syntax error")

// Kind identifies the type held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Value is a typed property value.
type Value struct {
	kind Kind
	i    int
	f    float64
	b    bool
	s    string
}

// IntValue returns an integer Value.
func IntValue(i int) Value { return Value{kind: KindInteger, i: i} }

// FloatValue returns a float Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// Kind reports the type of v.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer held by v.
func (v Value) Int() (int, bool) {
	return v.i, v.kind == KindInteger
}

// Float returns v as a float. Integers are widened.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	}
	return 0, false
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// String renders v the way it would be written in markup.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.Itoa(v.i)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

// Property is one name/value pair on an attribute.
type Property struct {
	Name  string
	Value Value
}

// Attribute is a named point marker at a rune offset of the display text.
type Attribute struct {
	Name       string
	Position   int
	Properties []Property
}

// Prop returns the first property called name.
func (a Attribute) Prop(name string) (Value, bool) {
	for _, p := range a.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether the attribute carries a property called name.
func (a Attribute) Has(name string) bool {
	_, ok := a.Prop(name)
	return ok
}

func (a Attribute) String() string {
	return fmt.Sprintf("[%s@%d %v]", a.Name, a.Position, a.Properties)
}

// Result is the outcome of parsing one raw line.
type Result struct {
	Text       string
	Attributes []Attribute
	SpeakerID  string
}

// Length returns the number of display characters in Text.
func (r Result) Length() int {
	return len([]rune(r.Text))
}
