package merge

import (
	"reflect"
	"slices"
	"strings"

	"github.com/learking/pathsampling/model"
)

// Equal reports whether the nodes a and b of g are interchangeable: they have
// the same kind and the same set of input names, and every input value of a
// equals the value of the same-named input of b.
//
// Values compare as follows: lists by length and containment (order is
// ignored), texts after trimming surrounding white space, scalars by value,
// references by identity and unset values only with unset values.
func Equal(g *model.Graph, a, b model.Ref) bool {
	na, nb := g.Node(a), g.Node(b)
	if na.Kind != nb.Kind {
		return false
	}
	return equalInputs(na, nb)
}

func equalInputs(a, b model.InputLister) bool {
	ia, ib := a.ListInputs(), b.ListInputs()
	if len(ia) != len(ib) {
		return false
	}
	for _, x := range ia {
		j := slices.IndexFunc(ib, func(y model.Input) bool { return y.Name == x.Name })
		if j < 0 || !EqualValues(x.Value, ib[j].Value) {
			return false
		}
	}
	return true
}

// EqualValues reports whether two input values are equal in the sense of
// Equal.
func EqualValues(x, y model.Value) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	switch vx := x.(type) {
	case model.List:
		vy, ok := y.(model.List)
		if !ok || len(vx) != len(vy) {
			return false
		}
		for _, e := range vx {
			if !slices.ContainsFunc(vy, func(f model.Value) bool { return EqualValues(e, f) }) {
				return false
			}
		}
		return true
	case model.Text:
		vy, ok := y.(model.Text)
		return ok && strings.TrimSpace(string(vx)) == strings.TrimSpace(string(vy))
	case model.Scalar:
		vy, ok := y.(model.Scalar)
		return ok && equalScalars(vx.V, vy.V)
	case model.Ref:
		vy, ok := y.(model.Ref)
		return ok && vx == vy
	default:
		return false
	}
}

// equalScalars compares scalar values with ==, falling back to a deep
// comparison for types that do not support it.
func equalScalars(x, y any) bool {
	if x == nil || y == nil {
		return x == y
	}
	tx := reflect.TypeOf(x)
	if tx != reflect.TypeOf(y) {
		return false
	}
	if !tx.Comparable() {
		return reflect.DeepEqual(x, y)
	}
	return x == y
}
