package model

import (
	"fmt"
	"strings"
)

// Value is the current value of a node's input. Although the model package could
// work with any type, we guard against accidental use of types by requiring them
// to implement this interface; the implementations are Scalar, Text, Ref and
// List. A nil Value denotes an unset input.
type Value interface {
	// modelValue is a no-op method that allows us to distinguish between types that
	// implement Value and those that do not.
	modelValue()
}

// Scalar holds a primitive input value (e.g. a float64, int or bool). Two
// scalars are equal when their values are ==; values of types that are not
// comparable are compared deeply.
type Scalar struct{ V any }

// Text holds a string input value. Two texts are equal when they are equal after
// trimming surrounding white space.
type Text string

// Ref references another node of the same Graph by its position in the graph's
// arena. Two refs are equal only when they reference the very same node.
type Ref int

// List holds an ordered list of values.
type List []Value

func (Scalar) modelValue() {}
func (Text) modelValue()   {}
func (Ref) modelValue()    {}
func (List) modelValue()   {}

func (s Scalar) String() string { return fmt.Sprint(s.V) }
func (t Text) String() string   { return string(t) }
func (r Ref) String() string    { return fmt.Sprintf("@%d", int(r)) }

func (l List) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprint(&b, v)
	}
	b.WriteByte(']')
	return b.String()
}

// InputType is the declared type of an input.
type InputType int

const (
	ScalarType InputType = iota
	TextType
	NodeType
	ListType
)

func (t InputType) String() string {
	switch t {
	case ScalarType:
		return "scalar"
	case TextType:
		return "text"
	case NodeType:
		return "node"
	case ListType:
		return "list"
	default:
		return fmt.Sprintf("InputType(%d)", int(t))
	}
}

// An Input is a named, typed slot of a node together with its current value.
type Input struct {
	Name  string
	Type  InputType
	Value Value // nil when unset
}

// An InputLister exposes the typed inputs of a node: the list of (name,
// declared type, current value) that merging and equality operate on.
type InputLister interface {
	ListInputs() []Input
}

// In returns an input whose declared type is inferred from the given value.
// Go primitives are wrapped into Scalar, strings into Text and slices of values
// into List. It panics when given a type it cannot represent.
func In(name string, value any) Input {
	switch v := value.(type) {
	case nil:
		panic("model: cannot infer the type of a nil input " + name + "; use Unset")
	case Scalar:
		return Input{Name: name, Type: ScalarType, Value: v}
	case Text:
		return Input{Name: name, Type: TextType, Value: v}
	case string:
		return Input{Name: name, Type: TextType, Value: Text(v)}
	case Ref:
		return Input{Name: name, Type: NodeType, Value: v}
	case List:
		return Input{Name: name, Type: ListType, Value: v}
	case []Ref:
		l := make(List, len(v))
		for i := range v {
			l[i] = v[i]
		}
		return Input{Name: name, Type: ListType, Value: l}
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return Input{Name: name, Type: ScalarType, Value: Scalar{V: v}}
	default:
		panic(fmt.Sprintf("model: unsupported input %s of type %T", name, value))
	}
}

// Unset returns an input of the given type that holds no value.
func Unset(name string, t InputType) Input {
	return Input{Name: name, Type: t}
}

// refsOf calls fn for every Ref held by v, descending into lists.
func refsOf(v Value, fn func(Ref)) {
	switch x := v.(type) {
	case Ref:
		fn(x)
	case List:
		for _, e := range x {
			refsOf(e, fn)
		}
	}
}

// mapRefs returns a copy of v with every Ref replaced by fn(ref).
func mapRefs(v Value, fn func(Ref) Ref) Value {
	switch x := v.(type) {
	case Ref:
		return fn(x)
	case List:
		l := make(List, len(x))
		for i, e := range x {
			l[i] = mapRefs(e, fn)
		}
		return l
	default:
		return v
	}
}
