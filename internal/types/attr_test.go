package types

import (
	"testing"
	"time"
)

func TestAttrConstructors(t *testing.T) {
	if v := BoolAttr(true); v.Type != AttrBoolean || !v.Bool {
		t.Fatalf("BoolAttr = %+v", v)
	}
	if v := IntAttr(42); v.Type != AttrInteger || v.Int != 42 {
		t.Fatalf("IntAttr = %+v", v)
	}
	if v := DecimalAttr("10.500"); v.Type != AttrDecimal || v.Str != "10.500" {
		t.Fatalf("DecimalAttr = %+v", v)
	}

	date := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)
	if v := DateAttr(date); v.Str != "2024-03-15" {
		t.Fatalf("DateAttr string = %q", v.Str)
	}

	dt := DatetimeAttr(time.Date(2024, 3, 15, 13, 45, 0, 0, time.FixedZone("x", 3600)))
	if dt.Datetime.Location() != time.UTC {
		t.Fatalf("DatetimeAttr not normalized to UTC: %v", dt.Datetime)
	}
}

func TestAttrValidate(t *testing.T) {
	valid := []AttrValue{
		BoolAttr(false),
		IntAttr(0),
		FloatAttr(3.14),
		StringAttr(""),
		StringArrayAttr("a", "b"),
		ArrayAttr(IntAttr(1), IntAttr(2), IntAttr(3)),
		ArrayAttr(), // empty array is fine
	}
	for i, v := range valid {
		if err := v.Validate(); err != nil {
			t.Errorf("value %d: unexpected error: %v", i, err)
		}
	}

	if err := (AttrValue{Type: "GEOMETRY"}).Validate(); err == nil {
		t.Fatalf("unknown type validated")
	}

	mixed := AttrValue{Type: AttrInteger, Items: []AttrValue{IntAttr(1), StringAttr("x")}}
	if err := mixed.Validate(); err == nil {
		t.Fatalf("non-uniform array validated")
	}

	nested := AttrValue{Type: AttrString, Items: []AttrValue{StringArrayAttr("a")}}
	if err := nested.Validate(); err == nil {
		t.Fatalf("nested array validated")
	}
}

func TestAttrEqual(t *testing.T) {
	if !StringArrayAttr("a", "b").Equal(StringArrayAttr("a", "b")) {
		t.Fatalf("equal arrays reported unequal")
	}
	if StringArrayAttr("a", "b").Equal(StringArrayAttr("b", "a")) {
		t.Fatalf("array order ignored")
	}
	if StringAttr("a").Equal(StringArrayAttr("a")) {
		t.Fatalf("scalar equal to one-element array")
	}
	if IntAttr(1).Equal(FloatAttr(1)) {
		t.Fatalf("cross-type values reported equal")
	}

	d1 := DatetimeAttr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	d2 := DatetimeAttr(time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("x", 3600)))
	if !d1.Equal(d2) {
		t.Fatalf("same instant in different zones reported unequal")
	}
}

func TestAttrString(t *testing.T) {
	cases := []struct {
		v    AttrValue
		want string
	}{
		{BoolAttr(true), "true"},
		{IntAttr(-7), "-7"},
		{StringAttr("hello"), "hello"},
		{DecimalAttr("1.250"), "1.250"},
		{StringArrayAttr("a", "b"), "[a, b]"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}
