package persist

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/schema"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Backend is a structure store that owns resources.
type Backend interface {
	SaveWindow(ctx context.Context, state schema.WindowState) error
	LoadWindow(ctx context.Context, windowID schema.WindowID) (schema.WindowState, bool, error)
	Close() error
}

// Open constructs the named backend rooted at dir.
func Open(backend, dir string, logger pslog.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewStoreWithLogger(dir, logger)
	case BackendSQLite:
		return NewSQLiteStore(dir, logger)
	}
	return nil, fmt.Errorf("%w: unknown state backend %q", schema.ErrInvalidConfig, backend)
}
