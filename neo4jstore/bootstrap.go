package neo4jstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// BootstrapDatabase creates the database and the constraints a Store relies
// on: node keys on the graph name of ModelGraph nodes and on the (graph, ref)
// pair of ModelNode nodes, which also index the lookups of the Store.
//
// To use the database with the default "neo4j" database, call Bootstrap
// instead, which only creates the constraints.
//
// This function is idempotent.
func BootstrapDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if err := createDatabase(ctx, d, name); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return Bootstrap(ctx, d, name)
}

// Bootstrap creates the constraints of a Store in an existing database.
//
// This function is idempotent.
func Bootstrap(ctx context.Context, d neo4j.DriverWithContext, database string) error {
	s := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer func() { _ = s.Close(ctx) }()

	_, err := s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Node keys need the enterprise edition, as in production.
		constraints := []string{
			`CREATE CONSTRAINT IF NOT EXISTS FOR (g:` + graphLabel + `) REQUIRE g.name IS NODE KEY`,
			`CREATE CONSTRAINT IF NOT EXISTS FOR (n:` + nodeLabel + `) REQUIRE (n._graph, n._ref) IS NODE KEY`,
		}
		for _, c := range constraints {
			if _, err := tx.Run(ctx, c, nil); err != nil {
				return nil, fmt.Errorf("key constraint: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("create constraints: %w", err)
	}
	return s.Close(ctx)
}

func createDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if name == "" {
		panic("neo4jstore: database name must not be empty")
	}
	if name == "neo4j" {
		panic("neo4jstore: database name must not be neo4j: use Bootstrap for the default database")
	}
	if strings.HasPrefix(name, "system") || strings.HasPrefix(name, "_") {
		panic("neo4jstore: Names that begin with an underscore and with the prefix system are reserved for internal use")
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = s.Close(ctx) }()

	_, err := s.Run(ctx, `
			CREATE DATABASE $name IF NOT EXISTS
		`, map[string]any{
		"name": name,
	})
	return err
}
