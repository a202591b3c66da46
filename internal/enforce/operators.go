package enforce

import (
	"cmp"
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/covenant/internal/expression"
)

// evaluatorOptions bind the helpers that lowered conditions call.
var evaluatorOptions = []expr.Option{
	expr.Function(expression.HelperBinary, binaryOp),
	expr.Function(expression.HelperComplement, complement),
	expr.Function(expression.HelperIndex, index),
	expr.Function(expression.HelperSlice, slice),
	expr.Function(expression.HelperConvert, convert),
	expr.Function(expression.HelperBuiltin, builtin),
}

// compile lowers a condition or value expression and compiles it for the
// evaluator.
func compile(text string, condition bool, opts ...expr.Option) (*vm.Program, error) {
	parse := expression.ParseValue
	if condition {
		parse = expression.Parse
	}
	tree, err := parse(text)
	if err != nil {
		return nil, err
	}
	lowered, err := expression.Lower(tree)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(lowered, append(opts, evaluatorOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", lowered, err)
	}
	return program, nil
}

var (
	intType   = reflect.TypeFor[int]()
	floatType = reflect.TypeFor[float64]()
)

var conversionTypes = map[string]reflect.Type{
	"bool":    reflect.TypeFor[bool](),
	"string":  reflect.TypeFor[string](),
	"byte":    reflect.TypeFor[byte](),
	"rune":    reflect.TypeFor[rune](),
	"int":     intType,
	"int8":    reflect.TypeFor[int8](),
	"int16":   reflect.TypeFor[int16](),
	"int32":   reflect.TypeFor[int32](),
	"int64":   reflect.TypeFor[int64](),
	"uint":    reflect.TypeFor[uint](),
	"uint8":   reflect.TypeFor[uint8](),
	"uint16":  reflect.TypeFor[uint16](),
	"uint32":  reflect.TypeFor[uint32](),
	"uint64":  reflect.TypeFor[uint64](),
	"uintptr": reflect.TypeFor[uintptr](),
	"float32": reflect.TypeFor[float32](),
	"float64": floatType,
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// operandType picks the type of a binary operation the way an untyped
// constant takes the type of its typed operand. Evaluator literals are int
// or float64, so a differing operand of any other type wins.
func operandType(x, y reflect.Value) reflect.Type {
	switch {
	case x.Type() == y.Type():
		return x.Type()
	case x.Type() == intType || x.Type() == floatType:
		return y.Type()
	default:
		return x.Type()
	}
}

// binaryOp applies a Go arithmetic or bitwise operator. Integer operands
// use integer arithmetic with the wrap-around of their type.
func binaryOp(params ...any) (any, error) {
	op := params[0].(string)
	x, y := reflect.ValueOf(params[1]), reflect.ValueOf(params[2])
	if !x.IsValid() || !y.IsValid() {
		return nil, fmt.Errorf("invalid operation: %v %s %v", params[1], op, params[2])
	}

	switch xk, yk := x.Kind(), y.Kind(); {
	case op == "<<" || op == ">>":
		return shift(op, x, y)
	case (isInt(xk) || isUint(xk)) && (isInt(yk) || isUint(yk)):
		typ := operandType(x, y)
		if isUint(typ.Kind()) {
			a, b := toUint(x), toUint(y)
			r, err := uintOp(op, a, b)
			if err != nil {
				return nil, err
			}
			return reflect.ValueOf(r).Convert(typ).Interface(), nil
		}
		a, b := toInt(x), toInt(y)
		r, err := intOp(op, a, b)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(r).Convert(typ).Interface(), nil
	case op == "/" && (isFloat(xk) || isInt(xk) || isUint(xk)) && (isFloat(yk) || isInt(yk) || isUint(yk)):
		typ := operandType(x, y)
		if !isFloat(typ.Kind()) {
			typ = floatType
		}
		return reflect.ValueOf(toFloat(x) / toFloat(y)).Convert(typ).Interface(), nil
	}
	return nil, fmt.Errorf("invalid operation: operator %s not defined on %T and %T", op, params[1], params[2])
}

func intOp(op string, a, b int64) (int64, error) {
	switch op {
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("integer divide by zero")
		}
		return a / b, nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&^":
		return a &^ b, nil
	}
	return 0, fmt.Errorf("unknown operator %s", op)
}

func uintOp(op string, a, b uint64) (uint64, error) {
	switch op {
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("integer divide by zero")
		}
		return a / b, nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&^":
		return a &^ b, nil
	}
	return 0, fmt.Errorf("unknown operator %s", op)
}

// shift keeps the type of its left operand.
func shift(op string, x, y reflect.Value) (any, error) {
	if !(isInt(x.Kind()) || isUint(x.Kind())) || !(isInt(y.Kind()) || isUint(y.Kind())) {
		return nil, fmt.Errorf("invalid operation: shift of %s by %s", x.Type(), y.Type())
	}
	if isInt(y.Kind()) && y.Int() < 0 {
		return nil, fmt.Errorf("negative shift amount %d", y.Int())
	}
	n := toUint(y)
	if isUint(x.Kind()) {
		r := toUint(x)
		if op == "<<" {
			r = r << n
		} else {
			r = r >> n
		}
		return reflect.ValueOf(r).Convert(x.Type()).Interface(), nil
	}
	r := toInt(x)
	if op == "<<" {
		r = r << n
	} else {
		r = r >> n
	}
	return reflect.ValueOf(r).Convert(x.Type()).Interface(), nil
}

func complement(params ...any) (any, error) {
	x := reflect.ValueOf(params[0])
	switch {
	case x.IsValid() && isInt(x.Kind()):
		return reflect.ValueOf(^x.Int()).Convert(x.Type()).Interface(), nil
	case x.IsValid() && isUint(x.Kind()):
		return reflect.ValueOf(^x.Uint()).Convert(x.Type()).Interface(), nil
	}
	return nil, fmt.Errorf("invalid operation: ^%T", params[0])
}

func toInt(v reflect.Value) int64 {
	if isUint(v.Kind()) {
		return int64(v.Uint())
	}
	return v.Int()
}

func toUint(v reflect.Value) uint64 {
	if isInt(v.Kind()) {
		return uint64(v.Int())
	}
	return v.Uint()
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isInt(v.Kind()):
		return float64(v.Int())
	case isUint(v.Kind()):
		return float64(v.Uint())
	}
	return v.Float()
}

// container dereferences pointers to arrays, as Go indexing does.
func container(x any) reflect.Value {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Array {
		return v.Elem()
	}
	return v
}

func intIndex(v reflect.Value, what string) (int, error) {
	switch {
	case v.IsValid() && isInt(v.Kind()):
		return int(v.Int()), nil
	case v.IsValid() && isUint(v.Kind()):
		return int(v.Uint()), nil
	}
	return 0, fmt.Errorf("%s must be an integer, got %v", what, v)
}

// index reads x[i]. Strings yield bytes and missing map keys yield the
// element type's zero value.
func index(params ...any) (any, error) {
	x, i := container(params[0]), reflect.ValueOf(params[1])
	switch x.Kind() {
	case reflect.Map:
		if x.IsNil() {
			return reflect.Zero(x.Type().Elem()).Interface(), nil
		}
		key, err := assignable(i, x.Type().Key())
		if err != nil {
			return nil, err
		}
		if v := x.MapIndex(key); v.IsValid() {
			return v.Interface(), nil
		}
		return reflect.Zero(x.Type().Elem()).Interface(), nil
	case reflect.String, reflect.Slice, reflect.Array:
		n, err := intIndex(i, "index")
		if err != nil {
			return nil, err
		}
		if n < 0 || n >= x.Len() {
			return nil, fmt.Errorf("index out of range [%d] with length %d", n, x.Len())
		}
		return x.Index(n).Interface(), nil
	}
	return nil, fmt.Errorf("cannot index %T", params[0])
}

func assignable(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	switch {
	case !v.IsValid():
		return reflect.Zero(t), nil
	case v.Type().AssignableTo(t):
		return v, nil
	case v.Type().ConvertibleTo(t) && (v.Kind() == t.Kind() || (isInt(v.Kind()) || isUint(v.Kind())) && (isInt(t.Kind()) || isUint(t.Kind()))):
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s key", v.Type(), t)
}

// slice evaluates x[lo:hi]; a nil bound is omitted.
func slice(params ...any) (any, error) {
	x := container(params[0])
	switch x.Kind() {
	case reflect.String, reflect.Slice, reflect.Array:
	default:
		return nil, fmt.Errorf("cannot slice %T", params[0])
	}
	if x.Kind() == reflect.Array && !x.CanAddr() {
		addressable := reflect.New(x.Type()).Elem()
		addressable.Set(x)
		x = addressable
	}

	lo, hi := 0, x.Len()
	if params[1] != nil {
		n, err := intIndex(reflect.ValueOf(params[1]), "slice bound")
		if err != nil {
			return nil, err
		}
		lo = n
	}
	if params[2] != nil {
		n, err := intIndex(reflect.ValueOf(params[2]), "slice bound")
		if err != nil {
			return nil, err
		}
		hi = n
	}
	limit := x.Len()
	if x.Kind() == reflect.Slice {
		limit = x.Cap()
	}
	if lo < 0 || hi < lo || hi > limit {
		return nil, fmt.Errorf("slice bounds out of range [%d:%d] with capacity %d", lo, hi, limit)
	}
	return x.Slice(lo, hi).Interface(), nil
}

// convert applies a Go conversion to one of the basic types.
func convert(params ...any) (any, error) {
	name := params[0].(string)
	t := conversionTypes[name]
	v := reflect.ValueOf(params[1])
	if t == nil || !v.IsValid() || !v.Type().ConvertibleTo(t) {
		return nil, fmt.Errorf("cannot convert %v (%T) to %s", params[1], params[1], name)
	}
	return v.Convert(t).Interface(), nil
}

// builtin evaluates len, cap, min and max.
func builtin(params ...any) (any, error) {
	name, args := params[0].(string), params[1:]
	switch name {
	case "len", "cap":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes exactly one argument", name)
		}
		return length(name, args[0])
	case "min", "max":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s needs at least one argument", name)
		}
		return extreme(name, args)
	}
	return nil, fmt.Errorf("unknown builtin %s", name)
}

func length(name string, x any) (any, error) {
	v := container(x)
	if !v.IsValid() {
		return 0, nil
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Chan:
		if name == "cap" {
			return v.Cap(), nil
		}
		return v.Len(), nil
	case reflect.String, reflect.Map:
		if name == "len" {
			return v.Len(), nil
		}
	}
	return nil, fmt.Errorf("invalid argument: %s(%T)", name, x)
}

func extreme(name string, args []any) (any, error) {
	best := args[0]
	for _, a := range args[1:] {
		c, err := compare(a, best)
		if err != nil {
			return nil, err
		}
		if (name == "min" && c < 0) || (name == "max" && c > 0) {
			best = a
		}
	}
	return best, nil
}

func compare(a, b any) (int, error) {
	x, y := reflect.ValueOf(a), reflect.ValueOf(b)
	if x.IsValid() && y.IsValid() {
		xk, yk := x.Kind(), y.Kind()
		switch {
		case xk == reflect.String && yk == reflect.String:
			return cmp.Compare(x.String(), y.String()), nil
		case (isInt(xk) || isUint(xk)) && (isInt(yk) || isUint(yk)) && !isUint(xk) && !isUint(yk):
			return cmp.Compare(x.Int(), y.Int()), nil
		case (isInt(xk) || isUint(xk)) && (isInt(yk) || isUint(yk)):
			return cmp.Compare(toUint(x), toUint(y)), nil
		case (isInt(xk) || isUint(xk) || isFloat(xk)) && (isInt(yk) || isUint(yk) || isFloat(yk)):
			return cmp.Compare(toFloat(x), toFloat(y)), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T and %T", a, b)
}
