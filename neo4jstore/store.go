// Package neo4jstore keeps model graphs in Neo4j, so the graphs a run samples
// (notably the merged graph of a paired run) can be inspected and reloaded.
//
// A graph is a (:ModelGraph {name, root, nodes}) node and one
// (:ModelNode {_graph, _ref, id, kind, ...}) node per arena slot. References
// between model nodes are (:ModelNode)-[:INPUT {name, position}]->(:ModelNode)
// relationships from a consumer to its input.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/learking/pathsampling/model"
)

const (
	graphLabel = "ModelGraph"
	nodeLabel  = "ModelNode"
)

// ErrNotFound is returned by Store.LoadGraph for unknown graph names.
var ErrNotFound = errors.New("neo4jstore: graph not found")

// A Store saves and loads model graphs by name.
type Store struct {
	driver   neo4j.DriverWithContext // Connection to the neo4j server/cluster.
	database string                  // Target database name.
}

// New returns a Store over the given database, which must have been set up
// with Bootstrap or BootstrapDatabase.
func New(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{driver: driver, database: database}
}

// SaveGraph stores g under name, replacing any graph saved under the same
// name. The graph is written in a single transaction.
func (s *Store) SaveGraph(ctx context.Context, name string, g *model.Graph) (err error) {
	ctx, span := tracer.Start(ctx, "neo4jstore.SaveGraph", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.String("graph.name", name),
		attribute.Int("graph.nodes", g.Len()),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	logger := component.Logger(ctx).With("neo4j.database", s.database, "graph", name)

	type encoded struct {
		props map[string]any
		edges []edge
	}
	nodes := make([]encoded, g.Len())
	for r := range g.Len() {
		props, edges, err := encodeNode(g.Node(model.Ref(r)))
		if err != nil {
			return err
		}
		props["_graph"] = name
		props["_ref"] = int64(r)
		nodes[r] = encoded{props: props, edges: edges}
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			logger.Error("Failed to close session", "error", err, "mode", "write")
		}
	}()

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (n:`+nodeLabel+` {_graph: $graph})
			DETACH DELETE n
		`, map[string]any{"graph": name})
		if err != nil {
			return nil, fmt.Errorf("delete previous graph: %w", err)
		}

		result, err := tx.Run(ctx, `
			MERGE (g:`+graphLabel+` {name: $graph})
			ON CREATE SET g._created_at = datetime()
			SET g.root = $root, g.nodes = $nodes, g._last_modified = datetime()
			RETURN count(g) AS graphs
		`, map[string]any{"graph": name, "root": int64(g.Root()), "nodes": int64(g.Len())})
		if err := expectOne(ctx, result, err, "graphs"); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}

		for r, n := range nodes {
			result, err := tx.Run(ctx, `
				MERGE (n:`+nodeLabel+` {_graph: $graph, _ref: $ref})
				SET n += $props
				RETURN count(n) AS nodes
			`, map[string]any{"graph": name, "ref": int64(r), "props": n.props})
			if err := expectOne(ctx, result, err, "nodes"); err != nil {
				return nil, fmt.Errorf("node %d: %w", r, err)
			}
		}
		for r, n := range nodes {
			for _, e := range n.edges {
				result, err := tx.Run(ctx, `
					MATCH (c:`+nodeLabel+` {_graph: $graph, _ref: $from})
					MATCH (i:`+nodeLabel+` {_graph: $graph, _ref: $to})
					MERGE (c)-[e:INPUT {name: $name, position: $position}]->(i)
					RETURN count(e) AS edges
				`, map[string]any{
					"graph":    name,
					"from":     int64(r),
					"to":       int64(e.To),
					"name":     e.Name,
					"position": e.Position,
				})
				if err := expectOne(ctx, result, err, "edges"); err != nil {
					return nil, fmt.Errorf("input %q of node %d: %w", e.Name, r, err)
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j execute: %w", err)
	}
	logger.Debug("Saved graph", "nodes", g.Len())
	return nil
}

// expectOne checks that a query modified exactly one entity, as counted by the
// given key of its single record.
func expectOne(ctx context.Context, result neo4j.ResultWithContext, err error, key string) error {
	if err != nil {
		return fmt.Errorf("run cypher: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("query single result: %w", err)
	}
	n, err := getRecordProperty[int64](record, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: modified %d %s instead of 1", errCorruptedGraph, n, key)
	}
	return nil
}

// LoadGraph returns the graph stored under name, or ErrNotFound.
func (s *Store) LoadGraph(ctx context.Context, name string) (g *model.Graph, err error) {
	ctx, span := tracer.Start(ctx, "neo4jstore.LoadGraph", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.String("graph.name", name),
	))
	defer span.End()
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			component.Logger(ctx).Error("Failed to close session", "error", err, "mode", "read")
		}
	}()

	v, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (g:`+graphLabel+` {name: $graph})
			RETURN g.root AS root, g.nodes AS nodes
		`, map[string]any{"graph": name})
		if err != nil {
			return nil, fmt.Errorf("run cypher: %w", err)
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
		if len(records) == 0 {
			return nil, ErrNotFound
		}
		root, err := getRecordProperty[int64](records[0], "root")
		if err != nil {
			return nil, fmt.Errorf("get root: %w", err)
		}
		size, err := getRecordProperty[int64](records[0], "nodes")
		if err != nil {
			return nil, fmt.Errorf("get nodes: %w", err)
		}

		result, err = tx.Run(ctx, `
			MATCH (n:`+nodeLabel+` {_graph: $graph})
			OPTIONAL MATCH (n)-[e:INPUT]->(i:`+nodeLabel+`)
			WITH n, collect(CASE WHEN e IS NULL THEN NULL ELSE [e.name, e.position, i._ref] END) AS inputs
			RETURN n, inputs
			ORDER BY n._ref
		`, map[string]any{"graph": name})
		if err != nil {
			return nil, fmt.Errorf("run cypher: %w", err)
		}
		records, err = result.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
		if int64(len(records)) != size {
			return nil, fmt.Errorf("%w: found %d of %d nodes", errCorruptedGraph, len(records), size)
		}
		return rebuild(records, model.Ref(root))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("neo4j execute: %w", err)
	}
	return v.(*model.Graph), nil
}

func rebuild(records []*neo4j.Record, root model.Ref) (*model.Graph, error) {
	nodes := make([]model.Node, len(records))
	for i, record := range records {
		node, err := getRecordProperty[neo4j.Node](record, "n")
		if err != nil {
			return nil, fmt.Errorf("get node: %w", err)
		}
		inputs, err := getRecordProperty[[]any](record, "inputs")
		if err != nil {
			return nil, fmt.Errorf("get inputs: %w", err)
		}
		edges, err := parseEdges(inputs)
		if err != nil {
			return nil, err
		}
		if nodes[i], err = decodeNode(node.Props, edges); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	g, err := model.Build(nodes, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptedGraph, err)
	}
	return g, nil
}

func parseEdges(inputs []any) ([]edge, error) {
	edges := make([]edge, 0, len(inputs))
	for _, in := range inputs {
		fields, ok := in.([]any)
		if !ok || len(fields) != 3 {
			return nil, unexpectedPropertyTypeError{Type: reflect.TypeOf(in)}
		}
		name, ok1 := fields[0].(string)
		position, ok2 := fields[1].(int64)
		to, ok3 := fields[2].(int64)
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("%w: malformed INPUT relationship %v", errCorruptedGraph, fields)
		}
		edges = append(edges, edge{Name: name, Position: position, To: model.Ref(to)})
	}
	return edges, nil
}

// errCorruptedGraph reports a stored graph that violates the invariants of
// model graphs, or a write that touched an unexpected number of entities.
var errCorruptedGraph = errors.New("corrupted graph")

// A errPropertyNotFound occurs when a property of Node/Edge is missing.
//
// When encountering this error, it most likely occurs when changing a Cypher
// query without modifying the surrounding code properly.
var errPropertyNotFound = errors.New("property not found")

// An unexpectedPropertyTypeError occurs when a property of Node/Edge has a
// runtime type that is different from the expected type. The error message
// contains the effective type of the property at runtime.
type unexpectedPropertyTypeError struct {
	Type reflect.Type // Effective type encountered at runtime.
}

func (e unexpectedPropertyTypeError) Error() string {
	if e.Type == nil {
		return "unexpected property type: nil"
	}
	return "unexpected property type: " + e.Type.String()
}

// The recordProperty interface defines generic constraints for supported values
// by getRecordProperty.
//
// These type constraints protect against unsupported neo4j types like int,
// uint32, etc.
type recordProperty interface {
	int64 | string | neo4j.Node | []any
}

func getRecordProperty[T recordProperty](record *neo4j.Record, key string) (value T, err error) {
	prop, exists := record.Get(key)
	if !exists {
		return value, errPropertyNotFound
	}
	v, ok := prop.(T)
	if !ok {
		return value, unexpectedPropertyTypeError{Type: reflect.TypeOf(prop)}
	}
	return v, nil
}
