package core

import (
	"context"

	"pkt.systems/tabtree/schema"
)

// TabService is the external tab-ordering service. Calls are asynchronous
// from the tree's point of view and may fail with schema.ErrMissingTab when a
// tab is already gone.
type TabService interface {
	Create(ctx context.Context, params schema.CreateParams) (schema.APITab, error)
	Remove(ctx context.Context, ids []schema.APITabID) error
	// Move places ids contiguously and in order so the first one ends at
	// params.Index in the resulting sequence of params.WindowID.
	Move(ctx context.Context, ids []schema.APITabID, params schema.MoveParams) ([]schema.APITab, error)
	Get(ctx context.Context, id schema.APITabID) (schema.APITab, error)
	Query(ctx context.Context, filter schema.QueryFilter) ([]schema.APITab, error)
	Duplicate(ctx context.Context, id schema.APITabID) (schema.APITab, error)
	Activate(ctx context.Context, id schema.APITabID) error
}
