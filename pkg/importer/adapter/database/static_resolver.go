package database

import (
	"context"
	"fmt"
)

// StaticResolver always resolves to one already-open connection. Used by the CLI
// commands that open a single connection and by tests.
type StaticResolver struct {
	conn DBConnection
}

// NewStaticResolver creates a resolver around conn.
func NewStaticResolver(conn DBConnection) *StaticResolver {
	return &StaticResolver{conn: conn}
}

// ResolveDBConnection returns the wrapped connection regardless of name.
func (r *StaticResolver) ResolveDBConnection(ctx context.Context, name string) (DBConnection, error) {
	if r.conn == nil {
		return nil, fmt.Errorf("no connection available for '%s'", name)
	}
	return r.conn, nil
}
