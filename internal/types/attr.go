package types

import (
	"fmt"
	"time"
)

// AttrType names the primitive type of an attribute value.
// Array attributes carry a uniform element type.
type AttrType string

const (
	AttrBoolean  AttrType = "BOOLEAN"
	AttrInteger  AttrType = "INTEGER"
	AttrFloat    AttrType = "FLOAT"
	AttrString   AttrType = "STRING"
	AttrDecimal  AttrType = "DECIMAL"
	AttrDate     AttrType = "DATE"
	AttrDatetime AttrType = "DATETIME"
)

// DateLayout is the canonical encoding for DATE attribute values.
const DateLayout = "2006-01-02"

// AttrValue is a typed attribute value: one scalar of the declared type,
// or an array of scalars with a uniform element type.
//
// Exactly one value field is meaningful, selected by Type. DECIMAL and
// DATE values are carried as canonical strings so they round-trip exactly
// regardless of the backing database's numeric/date handling.
type AttrValue struct {
	Type AttrType `json:"type"`

	Bool     bool      `json:"bool,omitempty"`
	Int      int64     `json:"int,omitempty"`
	Float    float64   `json:"float,omitempty"`
	Str      string    `json:"str,omitempty"`      // STRING, DECIMAL and DATE
	Datetime time.Time `json:"datetime,omitzero"`  // DATETIME, UTC

	// Items is non-nil for array values; elements must be scalars of Type.
	Items []AttrValue `json:"items,omitempty"`
}

// Scalar constructors.

func BoolAttr(v bool) AttrValue       { return AttrValue{Type: AttrBoolean, Bool: v} }
func IntAttr(v int64) AttrValue       { return AttrValue{Type: AttrInteger, Int: v} }
func FloatAttr(v float64) AttrValue   { return AttrValue{Type: AttrFloat, Float: v} }
func StringAttr(v string) AttrValue   { return AttrValue{Type: AttrString, Str: v} }
func DecimalAttr(v string) AttrValue  { return AttrValue{Type: AttrDecimal, Str: v} }
func DateAttr(v time.Time) AttrValue  { return AttrValue{Type: AttrDate, Str: v.Format(DateLayout)} }
func DatetimeAttr(v time.Time) AttrValue {
	return AttrValue{Type: AttrDatetime, Datetime: v.UTC()}
}

// ArrayAttr builds an array value from scalar elements. All elements must
// share the same primitive type; the first element fixes it.
func ArrayAttr(items ...AttrValue) AttrValue {
	if len(items) == 0 {
		return AttrValue{Type: AttrString, Items: []AttrValue{}}
	}
	return AttrValue{Type: items[0].Type, Items: items}
}

// StringArrayAttr is a convenience for the common all-strings case.
func StringArrayAttr(items ...string) AttrValue {
	vals := make([]AttrValue, len(items))
	for i, s := range items {
		vals[i] = StringAttr(s)
	}
	return AttrValue{Type: AttrString, Items: vals}
}

// IsArray reports whether the value is an array.
func (v AttrValue) IsArray() bool { return v.Items != nil }

// Validate checks the value is a well-formed scalar or uniform array.
func (v AttrValue) Validate() error {
	switch v.Type {
	case AttrBoolean, AttrInteger, AttrFloat, AttrString, AttrDecimal, AttrDate, AttrDatetime:
	default:
		return fmt.Errorf("unknown attr type %q", v.Type)
	}
	if v.Items == nil {
		return nil
	}
	for i, item := range v.Items {
		if item.IsArray() {
			return fmt.Errorf("element %d: nested arrays are not supported", i)
		}
		if item.Type != v.Type {
			return fmt.Errorf("element %d: type %q does not match array type %q",
				i, item.Type, v.Type)
		}
	}
	return nil
}

// Equal compares two attribute values, including array order.
func (v AttrValue) Equal(o AttrValue) bool {
	if v.Type != o.Type || v.IsArray() != o.IsArray() {
		return false
	}
	if v.IsArray() {
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	}
	switch v.Type {
	case AttrBoolean:
		return v.Bool == o.Bool
	case AttrInteger:
		return v.Int == o.Int
	case AttrFloat:
		return v.Float == o.Float
	case AttrString, AttrDecimal, AttrDate:
		return v.Str == o.Str
	case AttrDatetime:
		return v.Datetime.Equal(o.Datetime)
	}
	return false
}

// String renders the value for logs and CLI output.
func (v AttrValue) String() string {
	if v.IsArray() {
		out := "["
		for i, item := range v.Items {
			if i > 0 {
				out += ", "
			}
			out += item.String()
		}
		return out + "]"
	}
	switch v.Type {
	case AttrBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case AttrInteger:
		return fmt.Sprintf("%d", v.Int)
	case AttrFloat:
		return fmt.Sprintf("%g", v.Float)
	case AttrDatetime:
		return v.Datetime.Format(time.RFC3339Nano)
	default:
		return v.Str
	}
}
