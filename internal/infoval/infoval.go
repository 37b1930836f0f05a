// Package infoval models the dynamic, multi-shaped values carried in a VCF
// INFO field (flags, scalars, and Number=A/R/G lists) as an explicit tagged
// union instead of bare interface{} type assertions (SPEC_FULL.md §9).
package infoval

import "strconv"

// Kind tags the shape of a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindFlag
	KindInt
	KindFloat
	KindString
	KindList
)

// Value is one INFO field's parsed content.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	list []Value
}

// Missing is the zero Value, returned for absent keys.
var Missing = Value{kind: KindMissing}

// Flag returns a boolean flag value (a bare INFO key with no '=').
func Flag() Value { return Value{kind: KindFlag} }

// Int wraps an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a raw string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps a Number>1 / Number=A/R/G value.
func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

// Kind reports which accessor is valid.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the key was absent.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Int narrows the value to an integer, if it is one.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float narrows the value to a float, if it is one.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// String narrows the value to a raw string, if it is one.
func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// List narrows the value to its element slice, if it is one.
func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// ParseScalar classifies a raw INFO sub-value string into an Int, Float, or
// String Value, in that preference order — mirroring how the VCF spec
// declares Type= but tolerating values that don't strictly match it.
func ParseScalar(raw string) Value {
	if raw == "." || raw == "" {
		return Missing
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Float(f)
	}
	return String(raw)
}
