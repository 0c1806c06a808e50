package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"pkt.systems/tabtree/schema"
)

// moveRequest is the external half of a local reorder.
type moveRequest struct {
	windowID schema.WindowID
	tabs     []schema.TabID
	ref      schema.TabID
	after    bool
	// subtree moves tabs[0] first and lets tabs[1:] follow it.
	subtree bool
	moved   int
}

type removeRequest struct {
	windowID schema.WindowID
	ids      []schema.APITabID
}

type focusRequest struct {
	windowID schema.WindowID
	apiID    schema.APITabID
}

// reconcile asks the service to match a local reorder, waits for the service
// to report it, and restamps cached indices. Only a vanished subtree root is
// returned; other failures are logged and absorbed.
func (t *Tree) reconcile(ctx context.Context, req moveRequest) error {
	log := t.log(ctx, req.windowID, req.ref)
	var err error
	if req.subtree && len(req.tabs) > 1 {
		root := req.tabs[0]
		err = t.moveExternal(ctx, req.windowID, req.tabs[:1], req.ref, req.after)
		if err == nil || errors.Is(err, schema.ErrMissingTab) || errors.Is(err, schema.ErrConfirmTimeout) {
			if err != nil {
				log.Debug("tree subtree root move incomplete", "err", err)
			}
			if err = t.ensureLiving(ctx, root); err == nil {
				t.withContainer(req.windowID, func(c *container) { c.counters.SubtreeChildrenMoving++ })
				err = t.moveExternal(ctx, req.windowID, req.tabs[1:], root, true)
				t.withContainer(req.windowID, func(c *container) { decrement(&c.counters.SubtreeChildrenMoving, 1) })
			}
		}
	} else {
		err = t.moveExternal(ctx, req.windowID, req.tabs, req.ref, req.after)
	}
	t.finishMove(req)

	switch {
	case err == nil:
		log.Trace("tree move confirmed", "tabs", len(req.tabs))
	case errors.Is(err, schema.ErrMissingTab):
		log.Debug("tree move target already gone", "err", err)
	case errors.Is(err, schema.ErrTabRemovedDuringMove):
		log.Warn("tree subtree move aborted", "err", err)
	case errors.Is(err, schema.ErrConfirmTimeout):
		log.Warn("tree move not confirmed", "err", err)
	default:
		log.Warn("tree external move failed", "err", err)
	}
	if ctx.Err() == nil {
		if rerr := t.reconcileIndices(ctx, req.windowID); rerr != nil {
			log.Debug("tree index reconcile failed", "err", rerr)
		}
	}
	if errors.Is(err, schema.ErrTabRemovedDuringMove) {
		return err
	}
	return nil
}

func (t *Tree) withContainer(windowID schema.WindowID, fn func(c *container)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.container(windowID))
}

// finishMove rolls back the in-flight counters of a request.
func (t *Tree) finishMove(req moveRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.container(req.windowID)
	if req.subtree {
		decrement(&c.counters.SubtreeMoving, 1)
	}
	decrement(&c.counters.AlreadyMoved, req.moved)
	for _, record := range t.resolve(req.tabs) {
		c.drop(expectMove, record.apiID)
	}
}

func (t *Tree) ensureLiving(ctx context.Context, id schema.TabID) error {
	t.mu.Lock()
	record := t.get(id)
	var apiID schema.APITabID
	if record != nil {
		apiID = record.apiID
	}
	t.mu.Unlock()
	if record == nil {
		return fmt.Errorf("%w: %s", schema.ErrTabRemovedDuringMove, id)
	}
	if _, err := t.svc.Get(ctx, apiID); err != nil {
		if errors.Is(err, schema.ErrMissingTab) {
			return fmt.Errorf("%w: %s", schema.ErrTabRemovedDuringMove, id)
		}
		return err
	}
	return nil
}

// moveExternal moves ids next to ref in the service and waits for confirmation.
func (t *Tree) moveExternal(ctx context.Context, windowID schema.WindowID, ids []schema.TabID, ref schema.TabID, after bool) error {
	t.mu.Lock()
	refRecord := t.get(ref)
	records := t.resolve(ids)
	var refAPI schema.APITabID
	if refRecord != nil {
		refAPI = refRecord.apiID
	}
	apiIDs := make([]schema.APITabID, len(records))
	for i, record := range records {
		apiIDs[i] = record.apiID
	}
	t.mu.Unlock()
	if refRecord == nil || len(apiIDs) == 0 {
		return fmt.Errorf("move next to %s: %w", ref, schema.ErrMissingTab)
	}

	var refIndex int
	indices := make([]int, len(apiIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		api, err := t.svc.Get(gctx, refAPI)
		if err != nil {
			return err
		}
		refIndex = api.Index
		return nil
	})
	for i, apiID := range apiIDs {
		g.Go(func() error {
			api, err := t.svc.Get(gctx, apiID)
			if err != nil {
				return err
			}
			indices[i] = api.Index
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resolve move indices: %w", err)
	}
	target := refIndex
	for _, index := range indices {
		if index < refIndex {
			target--
		}
	}
	if after {
		target++
	}
	if _, err := t.svc.Move(ctx, apiIDs, schema.MoveParams{WindowID: windowID, Index: target}); err != nil {
		return fmt.Errorf("move tabs: %w", err)
	}
	return t.confirmIndex(ctx, apiIDs[0], target)
}

// confirmIndex polls until the service reports the expected index.
func (t *Tree) confirmIndex(ctx context.Context, apiID schema.APITabID, index int) error {
	return t.waitFor(ctx, t.cfg.MoveConfirmTimeout, func(ctx context.Context) (bool, error) {
		api, err := t.svc.Get(ctx, apiID)
		if err != nil {
			return false, err
		}
		return api.Index == index, nil
	})
}

// waitFor polls check with a doubling delay until it succeeds, fails, or
// timeout elapses. A timeout is reported as schema.ErrConfirmTimeout.
func (t *Tree) waitFor(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	delay := t.cfg.PollInterval
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return schema.ErrConfirmTimeout
		}
		if delay > remaining {
			delay = remaining
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// reconcileIndices restamps cached indices from the service. The local order
// follows the service only while no other local reorder is in flight.
func (t *Tree) reconcileIndices(ctx context.Context, windowID schema.WindowID) error {
	apiTabs, err := t.svc.Query(ctx, schema.QueryFilter{WindowID: windowID})
	if err != nil {
		return err
	}
	slices.SortFunc(apiTabs, func(a, b schema.APITab) int { return a.Index - b.Index })
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.windows[windowID]
	if !ok {
		return nil
	}
	known := make([]schema.TabID, 0, len(apiTabs))
	for _, api := range apiTabs {
		record := t.getByAPI(api.ID)
		if record == nil || record.windowID != windowID {
			continue
		}
		record.index = api.Index
		known = append(known, record.id)
	}
	if c.counters.AlreadyMoved > 0 || len(known) != len(c.order) || slices.Equal(known, c.order) {
		return nil
	}
	c.order = known
	parents := make([]*tab, 0)
	for _, id := range c.order {
		if record := t.get(id); record != nil && record.hasChildren() {
			parents = append(parents, record)
		}
	}
	t.syncChildrenOrder(parents)
	t.log(ctx, windowID, "").Debug("tree order reconciled with service")
	return nil
}

func (t *Tree) removeExternal(ctx context.Context, req removeRequest) {
	if err := t.svc.Remove(ctx, req.ids); err != nil {
		log := t.log(ctx, req.windowID, "")
		if errors.Is(err, schema.ErrMissingTab) {
			log.Debug("tree remove target already gone", "err", err)
		} else {
			log.Warn("tree external remove failed", "err", err)
		}
		t.withContainer(req.windowID, func(c *container) { c.drop(expectClose, req.ids...) })
	}
}

func (t *Tree) activateExternal(ctx context.Context, req focusRequest) {
	err := t.svc.Activate(ctx, req.apiID)
	t.withContainer(req.windowID, func(c *container) { c.drop(expectFocus, req.apiID) })
	if err != nil {
		log := t.log(ctx, req.windowID, "")
		if errors.Is(err, schema.ErrMissingTab) {
			log.Debug("tree focus target already gone", "err", err)
			return
		}
		log.Warn("tree external activate failed", "err", err)
	}
}
