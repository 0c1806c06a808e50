package core

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"pkt.systems/tabtree/schema"
)

// MoveTabsOptions tunes MoveTabs.
type MoveTabsOptions struct {
	// DestinationWindow defaults to the window of the first tab.
	DestinationWindow schema.WindowID
	InsertBefore      schema.TabID
	// InsertAfter defaults to the last tab of the destination window.
	InsertAfter schema.TabID
	Duplicate   bool
}

// MoveTabs moves or duplicates tabs, within a window or across windows, and
// carries their tree structure along. It returns the resulting tabs. When the
// service is slow to report new tabs the result is partial.
func (t *Tree) MoveTabs(ctx context.Context, ids []schema.TabID, opts MoveTabsOptions) ([]schema.TabID, error) {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	records := t.sortedLocked(t.resolve(ids))
	if len(records) == 0 {
		t.mu.Unlock()
		return nil, nil
	}
	source := records[0].windowID
	dest := opts.DestinationWindow
	if dest == schema.NoWindow {
		dest = source
	}
	across := dest != source
	if opts.InsertBefore == "" && opts.InsertAfter == "" {
		opts.InsertAfter = tabID(t.lastTabOf(dest))
	}
	structure := t.encodeLocked(records, false)
	apiIDs := make([]schema.APITabID, len(records))
	for i, record := range records {
		apiIDs[i] = record.apiID
	}
	ids = tabIDs(records)
	n := len(records)
	log := t.log(ctx, source, "").With("destination", int(dest), "tabs", n, "duplicate", opts.Duplicate)
	if !across && !opts.Duplicate {
		fx := t.release()
		_ = t.settle(ctx, fx)
		return t.placeMovedTabs(ctx, ids, opts), nil
	}

	t.blockLocked(source, true, true)
	if across {
		dc := t.container(dest)
		dc.counters.ToBeOpenedWithPositions += n
		dc.counters.ToBeOpenedOrphans += n
		dc.counters.ToBeAttached += n
		t.container(source).counters.ToBeDetached += n
	}
	if opts.Duplicate {
		t.container(source).counters.Duplicating += n
	}
	fx := t.release()
	_ = t.settle(ctx, fx)
	defer t.UnblockUserOperations(ctx, source, true)
	defer t.withContainer(dest, func(c *container) { decrement(&c.counters.ToBeAttached, n) })

	if opts.Duplicate {
		duplicated, err := t.duplicateAll(ctx, apiIDs)
		t.withContainer(source, func(c *container) { decrement(&c.counters.Duplicating, n) })
		if err != nil {
			t.rollbackTransfer(source, dest, across, n)
			return nil, fmt.Errorf("duplicate tabs: %w", err)
		}
		apiIDs = duplicated
	}

	expectWindow := source
	if across {
		toIndex, err := t.transferIndex(ctx, dest, opts)
		if err != nil {
			t.rollbackTransfer(source, dest, across, n)
			return nil, err
		}
		t.mu.Lock()
		for _, record := range t.resolve(ids) {
			if record.active {
				t.tryMoveFocusLocked(ctx, record, FocusOptions{Ignored: ids})
				break
			}
		}
		fx := t.release()
		_ = t.settle(ctx, fx)
		moved, err := t.svc.Move(ctx, apiIDs, schema.MoveParams{WindowID: dest, Index: toIndex})
		if err != nil {
			t.rollbackTransfer(source, dest, across, n)
			return nil, fmt.Errorf("move tabs to window %d: %w", dest, err)
		}
		apiIDs = apiIDs[:0]
		for _, api := range moved {
			apiIDs = append(apiIDs, api.ID)
		}
		expectWindow = dest
	}

	var found []*tab
	var positions []int
	err := t.waitFor(ctx, t.cfg.DuplicateTimeout, func(context.Context) (bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		found, positions = found[:0], positions[:0]
		for i, apiID := range apiIDs {
			if record := t.getByAPI(apiID); record != nil && record.windowID == expectWindow {
				found = append(found, record)
				positions = append(positions, i)
			}
		}
		return len(found) >= len(apiIDs), nil
	})
	if err != nil && !errors.Is(err, schema.ErrConfirmTimeout) {
		t.rollbackTransfer(source, dest, across, n-len(found))
		return nil, err
	}
	if err != nil {
		log.Warn("tree transferred tabs did not appear in time", "found", len(found), "err", err)
		t.rollbackTransfer(source, dest, across, n-len(found))
		structure = pickStructure(structure, positions)
	}
	if len(found) == 0 {
		return nil, nil
	}

	var newIDs []schema.TabID
	_ = t.run(ctx, func() error {
		newTabs := t.resolve(tabIDs(found))
		t.decodeLocked(ctx, newTabs, structure)
		for _, record := range newTabs {
			record.duplicating = false
		}
		newIDs = tabIDs(newTabs)
		return nil
	})
	log.Info("tree tabs transferred", "across", across)
	return t.placeMovedTabs(ctx, newIDs, opts), nil
}

func (t *Tree) placeMovedTabs(ctx context.Context, ids []schema.TabID, opts MoveTabsOptions) []schema.TabID {
	switch {
	case opts.InsertBefore != "":
		t.MoveBefore(ctx, ids, opts.InsertBefore, MoveOptions{Broadcast: true})
	case opts.InsertAfter != "":
		t.MoveAfter(ctx, ids, opts.InsertAfter, MoveOptions{Broadcast: true})
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabIDs(t.resolve(ids))
}

// duplicateAll duplicates tabs in parallel. Tabs gone meanwhile are skipped.
func (t *Tree) duplicateAll(ctx context.Context, apiIDs []schema.APITabID) ([]schema.APITabID, error) {
	results := make([]schema.APITabID, len(apiIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, apiID := range apiIDs {
		g.Go(func() error {
			api, err := t.svc.Duplicate(gctx, apiID)
			if errors.Is(err, schema.ErrMissingTab) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = api.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := results[:0]
	for _, id := range results {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

// transferIndex resolves the service index in dest where transferred tabs go.
func (t *Tree) transferIndex(ctx context.Context, dest schema.WindowID, opts MoveTabsOptions) (int, error) {
	t.mu.Lock()
	toIndex := len(t.container(dest).order)
	ref := t.get(opts.InsertBefore)
	after := false
	if ref == nil || ref.windowID != dest {
		ref = t.get(opts.InsertAfter)
		after = true
	}
	var refAPI schema.APITabID
	if ref != nil && ref.windowID == dest {
		refAPI = ref.apiID
	}
	t.mu.Unlock()
	if refAPI == 0 {
		return toIndex, nil
	}
	api, err := t.svc.Get(ctx, refAPI)
	if errors.Is(err, schema.ErrMissingTab) {
		return toIndex, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve transfer index: %w", err)
	}
	if after {
		return api.Index + 1, nil
	}
	return api.Index, nil
}

// pickStructure keeps the entries at positions. Parents that were dropped
// turn their children into roots.
func pickStructure(structure schema.TreeStructure, positions []int) schema.TreeStructure {
	index := make(map[int]int, len(positions))
	out := make(schema.TreeStructure, 0, len(positions))
	for _, pos := range positions {
		if pos >= len(structure) {
			continue
		}
		entry := structure[pos]
		if parent, ok := index[entry.Parent]; ok {
			entry.Parent = parent
		} else {
			entry.Parent = -1
		}
		index[pos] = len(out)
		out = append(out, entry)
	}
	return out
}

func (t *Tree) rollbackTransfer(source, dest schema.WindowID, across bool, n int) {
	if !across || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	dc := t.container(dest)
	decrement(&dc.counters.ToBeOpenedWithPositions, n)
	decrement(&dc.counters.ToBeOpenedOrphans, n)
	decrement(&t.container(source).counters.ToBeDetached, n)
}
