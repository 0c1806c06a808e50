package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/tabtree/schema"
)

var errNoStore = errors.New("no structure store configured")

// SaveWindow persists the structure of a window.
func (t *Tree) SaveWindow(ctx context.Context, windowID schema.WindowID) error {
	ctx = t.logCtx(ctx)
	if t.store == nil {
		return errNoStore
	}
	t.mu.Lock()
	c, ok := t.windows[windowID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("save window %d: %w", windowID, schema.ErrWindowNotFound)
	}
	state := schema.WindowState{
		WindowID:  windowID,
		SavedAt:   time.Now().UTC(),
		Structure: t.encodeLocked(t.resolve(c.order), true),
		Active:    c.active,
	}
	t.mu.Unlock()
	if err := t.store.SaveWindow(ctx, state); err != nil {
		return fmt.Errorf("save window %d: %w", windowID, err)
	}
	t.log(ctx, windowID, "").Debug("tree window saved", "tabs", len(state.Structure))
	return nil
}

// RestoreWindow applies the saved structure of a window to the tabs that are
// still present. It reports whether a saved structure was found.
func (t *Tree) RestoreWindow(ctx context.Context, windowID schema.WindowID) (bool, error) {
	ctx = t.logCtx(ctx)
	if t.store == nil {
		return false, errNoStore
	}
	state, ok, err := t.store.LoadWindow(ctx, windowID)
	if err != nil {
		return false, fmt.Errorf("load window %d: %w", windowID, err)
	}
	if !ok {
		return false, nil
	}
	err = t.run(ctx, func() error {
		records, structure := t.matchStructureLocked(windowID, state.Structure)
		t.decodeLocked(ctx, records, structure)
		t.log(ctx, windowID, "").Info("tree window restored", "saved", len(state.Structure), "matched", len(records))
		return nil
	})
	return true, err
}

// matchStructureLocked pairs saved entries with live tabs of a window. Entries
// without a tab are dropped and their children move up to the nearest kept
// ancestor.
func (t *Tree) matchStructureLocked(windowID schema.WindowID, saved schema.TreeStructure) ([]*tab, schema.TreeStructure) {
	newIndex := make([]int, len(saved))
	var records []*tab
	var structure schema.TreeStructure
	for i, entry := range saved {
		newIndex[i] = -1
		record := t.get(entry.ID)
		if record == nil || record.windowID != windowID {
			continue
		}
		parent := entry.Parent
		for parent >= 0 && parent < i && newIndex[parent] < 0 {
			next := saved[parent].Parent
			if next >= parent {
				next = -1
			}
			parent = next
		}
		if parent >= 0 && parent < i {
			parent = newIndex[parent]
		} else {
			parent = -1
		}
		newIndex[i] = len(records)
		records = append(records, record)
		entry.Parent = parent
		structure = append(structure, entry)
	}
	return records, structure
}
