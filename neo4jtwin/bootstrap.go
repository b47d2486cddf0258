package neo4jtwin

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// The node labels of the stored graph, and the properties that identify nodes
// of each label.
var nodeKeys = map[string]string{
	"Workspace":     "n.id",
	"ComponentType": "(n.workspaceId, n.id)",
	"Entity":        "(n.workspaceId, n.id)",
}

// BootstrapDatabase creates the given database and the constraints a Service
// relies on: a node key per label, which both indexes lookups and rejects
// duplicate nodes caused by concurrent MERGEs.
//
// Pass the reserved "neo4j" name to use the default database without creating
// one.
//
// This function is idempotent.
func BootstrapDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if name != "neo4j" {
		if err := createDatabase(ctx, d, name); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: name})
	defer func() { _ = s.Close(ctx) }()

	_, err := s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for label, key := range nodeKeys {
			// we use key constraint instead of uniqueness constraint because we can
			// (it is only available in the enterprise edition).
			_, err := tx.Run(ctx, `
				CREATE CONSTRAINT `+strings.ToLower(label)+`_key IF NOT EXISTS
				FOR (n:`+label+`)
				REQUIRE `+key+` IS NODE KEY
			`, nil)
			if err != nil {
				return nil, fmt.Errorf("key constraint: label %v: %w", label, err)
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
		panic("neo4jtwin: database name must not be empty")
	}
	if strings.HasPrefix(name, "system") || strings.HasPrefix(name, "_") {
		panic("neo4jtwin: Names that begin with an underscore and with the prefix system are reserved for internal use")
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = s.Close(ctx) }()

	// create a new database if it does not exist
	_, err := s.Run(ctx, `
			CREATE DATABASE $name IF NOT EXISTS
		`, map[string]any{
		"name": name,
	})
	return err
}
