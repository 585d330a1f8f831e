package value

import (
	"math"
	"strings"
	"unicode/utf16"
)

// Truthy applies JavaScript's ToBoolean.
func Truthy(v Value) bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	case KindArray, KindObject:
		return true
	default:
		return false
	}
}

// ToPrimitive reduces arrays and objects to the string their default toString
// produces. Primitives are returned unchanged.
func ToPrimitive(v Value) Value {
	switch v.kind {
	case KindArray:
		parts := make([]string, len(v.arr.elems))
		for i, e := range v.arr.elems {
			if e.IsNullish() {
				continue
			}
			parts[i] = ToString(e)
		}
		return String(strings.Join(parts, ","))
	case KindObject:
		return String("[object Object]")
	default:
		return v
	}
}

// ToNumber applies JavaScript's ToNumber.
func ToNumber(v Value) float64 {
	switch v.kind {
	case KindUndefined:
		return math.NaN()
	case KindNull:
		return 0
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.n
	case KindString:
		return ParseNumber(v.s)
	default:
		return ToNumber(ToPrimitive(v))
	}
}

// ToString applies JavaScript's ToString.
func ToString(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return v.s
	default:
		return ToPrimitive(v).s
	}
}

// PropertyKey converts a computed key to the string used as an object key.
func PropertyKey(v Value) string {
	return ToString(v)
}

// Add implements the binary + operator: string concatenation when either primitive
// operand is a string, numeric addition otherwise.
func Add(a, b Value) Value {
	pa, pb := ToPrimitive(a), ToPrimitive(b)
	if pa.kind == KindString || pb.kind == KindString {
		return String(ToString(pa) + ToString(pb))
	}
	return Number(ToNumber(pa) + ToNumber(pb))
}

// Arith implements -, *, / and %.
func Arith(op string, a, b Value) (Value, bool) {
	x, y := ToNumber(a), ToNumber(b)
	switch op {
	case "-":
		return Number(x - y), true
	case "*":
		return Number(x * y), true
	case "/":
		return Number(x / y), true
	case "%":
		return Number(math.Mod(x, y)), true
	}
	return Undefined, false
}

// Compare implements <, >, <= and >=.
func Compare(op string, a, b Value) (Value, bool) {
	switch op {
	case "<":
		r, ok := lessThan(a, b)
		return Bool(ok && r), true
	case ">":
		r, ok := lessThan(b, a)
		return Bool(ok && r), true
	case "<=":
		r, ok := lessThan(b, a)
		return Bool(ok && !r), true
	case ">=":
		r, ok := lessThan(a, b)
		return Bool(ok && !r), true
	}
	return Undefined, false
}

// lessThan is the abstract relational comparison. ok is false when the result is
// undefined, which happens when either side converts to NaN.
func lessThan(a, b Value) (result, ok bool) {
	pa, pb := ToPrimitive(a), ToPrimitive(b)
	if pa.kind == KindString && pb.kind == KindString {
		return compareUTF16(pa.s, pb.s) < 0, true
	}
	x, y := ToNumber(pa), ToNumber(pb)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false, false
	}
	return x < y, true
}

func compareUTF16(a, b string) int {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}

// StrictEqual implements ===.
func StrictEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		return a.arr == b.arr
	case KindObject:
		return a.obj == b.obj
	}
	return false
}

// LooseEqual implements ==.
func LooseEqual(a, b Value) bool {
	if a.kind == b.kind {
		return StrictEqual(a, b)
	}
	if a.IsNullish() || b.IsNullish() {
		return a.IsNullish() && b.IsNullish()
	}
	if a.kind == KindBool {
		return LooseEqual(Number(ToNumber(a)), b)
	}
	if b.kind == KindBool {
		return LooseEqual(a, Number(ToNumber(b)))
	}
	if a.kind == KindNumber && b.kind == KindString {
		return a.n == ParseNumber(b.s)
	}
	if a.kind == KindString && b.kind == KindNumber {
		return ParseNumber(a.s) == b.n
	}
	aObj := a.kind == KindArray || a.kind == KindObject
	bObj := b.kind == KindArray || b.kind == KindObject
	if aObj && !bObj {
		return LooseEqual(ToPrimitive(a), b)
	}
	if bObj && !aObj {
		return LooseEqual(a, ToPrimitive(b))
	}
	return false
}

// Equality implements ==, !=, === and !==.
func Equality(op string, a, b Value) (Value, bool) {
	switch op {
	case "==":
		return Bool(LooseEqual(a, b)), true
	case "!=":
		return Bool(!LooseEqual(a, b)), true
	case "===":
		return Bool(StrictEqual(a, b)), true
	case "!==":
		return Bool(!StrictEqual(a, b)), true
	}
	return Undefined, false
}

// Binary applies a supported binary operator. ok is false for operators the
// compiler does not evaluate.
func Binary(op string, a, b Value) (Value, bool) {
	if op == "+" {
		return Add(a, b), true
	}
	if v, ok := Arith(op, a, b); ok {
		return v, true
	}
	if v, ok := Compare(op, a, b); ok {
		return v, true
	}
	return Equality(op, a, b)
}

// Unary applies a supported prefix operator.
func Unary(op string, v Value) (Value, bool) {
	switch op {
	case "+":
		return Number(ToNumber(v)), true
	case "-":
		return Number(-ToNumber(v)), true
	case "!":
		return Bool(!Truthy(v)), true
	case "~":
		return Number(float64(^ToInt32(ToNumber(v)))), true
	}
	return Undefined, false
}

// Iterate returns the elements produced by spreading v into an array literal.
// ok is false for values that are not iterable.
func Iterate(v Value) ([]Value, bool) {
	switch v.kind {
	case KindArray:
		return v.arr.elems, true
	case KindString:
		out := make([]Value, 0, len(v.s))
		for _, r := range v.s {
			out = append(out, String(string(r)))
		}
		return out, true
	}
	return nil, false
}
