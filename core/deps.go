package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/schema"
)

// StructureStore persists window structures for session restore.
type StructureStore interface {
	SaveWindow(ctx context.Context, state schema.WindowState) error
	LoadWindow(ctx context.Context, windowID schema.WindowID) (schema.WindowState, bool, error)
}

// TreeDeps captures the dependencies of a Tree. Service is required.
type TreeDeps struct {
	Service     TabService
	EventSink   EventSink
	Broadcaster Broadcaster
	Store       StructureStore
	Logger      pslog.Logger
}
