package value

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestFormatNumber(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-42, "-42"},
		{0.1, "0.1"},
		{0.30000000000000004, "0.30000000000000004"},
		{a + b, "0.30000000000000004"},
		{123.456, "123.456"},
		{1e21, "1e+21"},
		{1e20, "100000000000000000000"},
		{1.5e-7, "1.5e-7"},
		{0.000001, "0.000001"},
		{2.5e25, "2.5e+25"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  42  ", 42},
		{"0x1F", 31},
		{"0b101", 5},
		{"0o17", 15},
		{"1e3", 1000},
		{".5", 0.5},
		{"-Infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		if got := ParseNumber(tt.in); got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"abc", "1_000", "0x", "-0x10", "inf", "NaN", "1e"} {
		if got := ParseNumber(in); !math.IsNaN(got) {
			t.Errorf("ParseNumber(%q) = %v, want NaN", in, got)
		}
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want string
	}{
		{"numbers", Number(1), Number(2), "3"},
		{"string and number", String("port:"), Number(80), "port:80"},
		{"array concatenates", Array(Number(1), Number(2)), String("x"), "1,2x"},
		{"object string", FromObject(NewObject()), String(""), "[object Object]"},
		{"null plus number", Null, Number(1), "1"},
		{"undefined plus number", Undefined, Number(1), "NaN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToString(Add(tt.a, tt.b)); got != tt.want {
				t.Errorf("Add = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEquality(t *testing.T) {
	arr := Array(Number(1))
	tests := []struct {
		name          string
		a, b          Value
		loose, strict bool
	}{
		{"null undefined", Null, Undefined, true, false},
		{"number string", Number(1), String("1"), true, false},
		{"bool number", True, Number(1), true, false},
		{"nan", Number(math.NaN()), Number(math.NaN()), false, false},
		{"same array", arr, arr, true, true},
		{"distinct arrays", Array(Number(1)), Array(Number(1)), false, false},
		{"array vs string", Array(Number(1), Number(2)), String("1,2"), true, false},
		{"null vs zero", Null, Number(0), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooseEqual(tt.a, tt.b); got != tt.loose {
				t.Errorf("LooseEqual = %v, want %v", got, tt.loose)
			}
			if got := StrictEqual(tt.a, tt.b); got != tt.strict {
				t.Errorf("StrictEqual = %v, want %v", got, tt.strict)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		op   string
		a, b Value
		want bool
	}{
		{"<", Number(1), Number(2), true},
		{">=", Number(2), Number(2), true},
		{"<", String("a"), String("b"), true},
		{"<", String("10"), String("9"), true},
		{"<", String("10"), Number(9), false},
		{"<=", Undefined, Number(1), false},
		{">=", Number(math.NaN()), Number(1), false},
	}
	for _, tt := range tests {
		v, ok := Compare(tt.op, tt.a, tt.b)
		if !ok {
			t.Fatalf("Compare(%q) not supported", tt.op)
		}
		if v.Bool() != tt.want {
			t.Errorf("%#v %s %#v = %v, want %v", tt.a, tt.op, tt.b, v.Bool(), tt.want)
		}
	}
}

func TestUnary(t *testing.T) {
	tests := []struct {
		op   string
		in   Value
		want string
	}{
		{"-", String("5"), "-5"},
		{"+", True, "1"},
		{"!", String(""), "true"},
		{"~", Number(5), "-6"},
		{"~", Number(4294967296 + 3), "-4"},
	}
	for _, tt := range tests {
		v, ok := Unary(tt.op, tt.in)
		if !ok {
			t.Fatalf("Unary(%q) not supported", tt.op)
		}
		if got := ToString(v); got != tt.want {
			t.Errorf("%s%#v = %q, want %q", tt.op, tt.in, got, tt.want)
		}
	}
	if _, ok := Unary("typeof", Null); ok {
		t.Error("typeof should not be supported")
	}
}

func TestObjectKeepsPositionOnOverwrite(t *testing.T) {
	o := NewObject()
	o.Set("a", Number(1))
	o.Set("b", Number(2))
	o.Set("a", Number(3))
	if got := strings.Join(o.Keys(), ","); got != "a,b" {
		t.Fatalf("keys = %s, want a,b", got)
	}
	v, _ := o.Get("a")
	if v.Num() != 3 {
		t.Errorf("a = %v, want 3", v.Num())
	}
}

func TestObjectAssign(t *testing.T) {
	tests := []struct {
		name string
		src  Value
		keys []string
	}{
		{"object", FromObject(objectOf("b", Number(1), "a", Number(2))), []string{"b", "a"}},
		{"array", Array(String("x"), String("y")), []string{"0", "1"}},
		{"string", String("ab"), []string{"0", "1"}},
		{"astral characters take two indices", String("a😀"), []string{"0", "1", "2"}},
		{"number", Number(7), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewObject()
			o.Assign(tt.src)
			if got := strings.Join(o.Keys(), ","); got != strings.Join(tt.keys, ",") {
				t.Errorf("keys = %q, want %q", got, strings.Join(tt.keys, ","))
			}
		})
	}

	o := NewObject()
	o.Assign(String("é😀"))
	if v, _ := o.Get("0"); v.Str() != "é" {
		t.Errorf("index 0 = %q, want é", v.Str())
	}
}

func objectOf(kv ...interface{}) *Object {
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1].(Value))
	}
	return o
}

func TestRenderJSON(t *testing.T) {
	o := NewObject()
	o.Set("name", String("<svc>"))
	o.Set("skip", Undefined)
	o.Set("ports", Array(Number(80), Undefined, Number(math.Inf(1))))
	o.Set("nested", FromObject(NewObject()))

	got, err := RenderJSON(FromObject(o))
	if err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	want := `{
  "name": "<svc>",
  "ports": [
    80,
    null,
    null
  ],
  "nested": {}
}`
	if string(got) != want {
		t.Errorf("RenderJSON =\n%s\nwant\n%s", got, want)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestRenderYAML(t *testing.T) {
	o := NewObject()
	o.Set("zeta", String("true"))
	o.Set("alpha", Number(1.5))
	o.Set("list", Array(Number(1), Null, String("x")))
	o.Set("gone", Undefined)

	got, err := RenderYAML(FromObject(o))
	if err != nil {
		t.Fatalf("RenderYAML failed: %v", err)
	}
	want := `zeta: "true"
alpha: 1.5
list:
  - 1
  - null
  - x
`
	if string(got) != want {
		t.Errorf("RenderYAML =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderUnsupportedFormat(t *testing.T) {
	_, err := Render(Null, "toml")
	if err == nil || err.Error() != "Unsupported format: toml" {
		t.Fatalf("err = %v, want Unsupported format", err)
	}
}

func TestToNative(t *testing.T) {
	o := NewObject()
	o.Set("a", Array(Number(1), True))
	o.Set("u", Undefined)
	native, ok := ToNative(FromObject(o)).(map[string]interface{})
	if !ok {
		t.Fatalf("ToNative returned %T", ToNative(FromObject(o)))
	}
	if _, present := native["u"]; present {
		t.Error("undefined member should be dropped")
	}
	arr := native["a"].([]interface{})
	if arr[0].(float64) != 1 || arr[1].(bool) != true {
		t.Errorf("unexpected array %v", arr)
	}
}
