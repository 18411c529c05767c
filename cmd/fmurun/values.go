package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"
)

// Variable names a model variable on the command line: kind:ref[=value],
// for example real:0=5 or boolean:3.
type Variable struct {
	Type  wit.Type
	Ref   uint32
	Value string
}

// witTypes maps FMI variable kinds to the WIT primitive carrying their values.
var witTypes = map[string]wit.Type{
	"real":    wit.F64{},
	"integer": wit.S32{},
	"boolean": wit.Bool{},
	"string":  wit.String{},
}

// ParseVariable parses kind:ref, or kind:ref=value when withValue is set.
func ParseVariable(spec string, withValue bool) (Variable, error) {
	var v Variable

	target, value, hasValue := strings.Cut(spec, "=")
	if withValue && !hasValue {
		return v, fmt.Errorf("variable %q: missing =value", spec)
	}
	if !withValue && hasValue {
		return v, fmt.Errorf("variable %q: unexpected value", spec)
	}

	kind, ref, ok := strings.Cut(target, ":")
	if !ok {
		return v, fmt.Errorf("variable %q: want kind:ref", spec)
	}
	t, ok := witTypes[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return v, fmt.Errorf("variable %q: unknown kind %q (want real, integer, boolean or string)", spec, kind)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(ref), 10, 32)
	if err != nil {
		return v, fmt.Errorf("variable %q: bad value reference: %w", spec, err)
	}

	v = Variable{Type: t, Ref: uint32(n), Value: value}
	if withValue {
		if _, err := convertValue(value, t); err != nil {
			return Variable{}, fmt.Errorf("variable %q: %w", spec, err)
		}
	}
	return v, nil
}

// String renders the variable in the form ParseVariable accepts, without value.
func (v Variable) String() string {
	return kindOf(v.Type) + ":" + strconv.FormatUint(uint64(v.Ref), 10)
}

func kindOf(t wit.Type) string {
	switch t.(type) {
	case wit.F64:
		return "real"
	case wit.S32:
		return "integer"
	case wit.Bool:
		return "boolean"
	case wit.String:
		return "string"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// convertValue parses s as a value of t.
func convertValue(s string, t wit.Type) (any, error) {
	switch t.(type) {
	case wit.String:
		return s, nil
	case wit.S32:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", s)
		}
		return int32(v), nil
	case wit.F64:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("not a real: %q", s)
		}
		return v, nil
	case wit.Bool:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", s)
	default:
		return nil, fmt.Errorf("unsupported type %s", witTypeStr(t))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	default:
		return fmt.Sprint(x)
	}
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.S32:
		return "s32"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	default:
		return fmt.Sprintf("%T", t)
	}
}
