package neo4jstore

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/learking/pathsampling/model"
)

// Properties of a ModelNode. The values of scalar, text and list inputs live
// in properties prefixed by their type, keyed by input name; references are
// INPUT relationships.
const (
	propID     = "id"
	propKind   = "kind"
	propInputs = "_inputs" // input names, in order
	propTypes  = "_types"  // declared input types, parallel to _inputs

	prefixScalar = "s."
	prefixText   = "t."
	prefixList   = "l." // list length; the elements are relationships
)

// singleRef is the position of the relationship of a node-typed input.
const singleRef = -1

// An edge is an INPUT relationship from a consumer to one of its inputs.
type edge struct {
	Name     string
	Position int64
	To       model.Ref
}

// encodeNode returns the properties and the outgoing edges of a node.
func encodeNode(n *model.Node) (map[string]any, []edge, error) {
	props := map[string]any{
		propID:   n.ID,
		propKind: n.Kind,
	}
	names := make([]string, len(n.Inputs))
	types := make([]string, len(n.Inputs))
	var edges []edge
	for i, in := range n.Inputs {
		names[i] = in.Name
		types[i] = in.Type.String()
		switch v := in.Value.(type) {
		case nil:
		case model.Scalar:
			p, err := scalarProperty(v.V)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: input %q: %w", n, in.Name, err)
			}
			props[prefixScalar+in.Name] = p
		case model.Text:
			props[prefixText+in.Name] = string(v)
		case model.Ref:
			edges = append(edges, edge{Name: in.Name, Position: singleRef, To: v})
		case model.List:
			for j, e := range v {
				ref, ok := e.(model.Ref)
				if !ok {
					return nil, nil, fmt.Errorf("%s: input %q: element %d is a %T; only lists of nodes can be stored", n, in.Name, j, e)
				}
				edges = append(edges, edge{Name: in.Name, Position: int64(j), To: ref})
			}
			props[prefixList+in.Name] = int64(len(v))
		}
	}
	props[propInputs] = names
	props[propTypes] = types
	return props, edges, nil
}

// scalarProperty converts a scalar to a value Neo4j stores. Integers are
// widened to int64 and floats to float64.
func scalarProperty(v any) (any, error) {
	switch x := v.(type) {
	case bool, int64, float64, string:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned scalar %d overflows int64", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned scalar %d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported scalar of type %T", v)
	}
}

// decodeNode rebuilds a node from its properties and outgoing edges.
func decodeNode(props map[string]any, edges []edge) (model.Node, error) {
	var n model.Node
	var err error
	if n.ID, err = property[string](props, propID); err != nil {
		return n, err
	}
	if n.Kind, err = property[string](props, propKind); err != nil {
		return n, err
	}
	names, err := stringList(props, propInputs)
	if err != nil {
		return n, err
	}
	types, err := stringList(props, propTypes)
	if err != nil {
		return n, err
	}
	if len(names) != len(types) {
		return n, fmt.Errorf("%s: %d input names for %d types", &n, len(names), len(types))
	}

	byName := make(map[string][]edge)
	for _, e := range edges {
		byName[e.Name] = append(byName[e.Name], e)
	}
	for i, name := range names {
		in := model.Input{Name: name}
		switch types[i] {
		case model.ScalarType.String():
			in.Type = model.ScalarType
			if v, ok := props[prefixScalar+name]; ok {
				in.Value = model.Scalar{V: v}
			}
		case model.TextType.String():
			in.Type = model.TextType
			if v, ok := props[prefixText+name]; ok {
				s, ok := v.(string)
				if !ok {
					return n, unexpectedPropertyTypeError{Type: reflect.TypeOf(v)}
				}
				in.Value = model.Text(s)
			}
		case model.NodeType.String():
			in.Type = model.NodeType
			if es := byName[name]; len(es) > 0 {
				if len(es) != 1 || es[0].Position != singleRef {
					return n, fmt.Errorf("%s: input %q: %d relationships for a node input", &n, name, len(es))
				}
				in.Value = es[0].To
			}
		case model.ListType.String():
			in.Type = model.ListType
			if _, ok := props[prefixList+name]; !ok {
				break
			}
			size, err := property[int64](props, prefixList+name)
			if err != nil {
				return n, err
			}
			es := slices.SortedFunc(slices.Values(byName[name]), func(a, b edge) int { return cmp.Compare(a.Position, b.Position) })
			if int64(len(es)) != size {
				return n, fmt.Errorf("%s: input %q: %d relationships for a list of %d", &n, name, len(es), size)
			}
			l := make(model.List, len(es))
			for j, e := range es {
				if e.Position != int64(j) {
					return n, fmt.Errorf("%s: input %q: missing list element %d", &n, name, j)
				}
				l[j] = e.To
			}
			in.Value = l
		default:
			return n, fmt.Errorf("%s: input %q has unknown type %q", &n, name, types[i])
		}
		n.Inputs = append(n.Inputs, in)
	}
	return n, nil
}

func property[T int64 | string](props map[string]any, key string) (value T, err error) {
	p, ok := props[key]
	if !ok {
		return value, fmt.Errorf("%s: %w", key, errPropertyNotFound)
	}
	v, ok := p.(T)
	if !ok {
		return value, unexpectedPropertyTypeError{Type: reflect.TypeOf(p)}
	}
	return v, nil
}

// stringList reads a list property. Neo4j returns lists as []any, while
// encodeNode produces []string.
func stringList(props map[string]any, key string) ([]string, error) {
	p, ok := props[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, errPropertyNotFound)
	}
	switch l := p.(type) {
	case []string:
		return l, nil
	case []any:
		s := make([]string, len(l))
		for i, e := range l {
			str, ok := e.(string)
			if !ok {
				return nil, unexpectedPropertyTypeError{Type: reflect.TypeOf(e)}
			}
			s[i] = str
		}
		return s, nil
	default:
		return nil, unexpectedPropertyTypeError{Type: reflect.TypeOf(p)}
	}
}
