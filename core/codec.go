package core

import (
	"context"

	"pkt.systems/tabtree/schema"
)

// Encode serializes the tree structure among ids. A tab whose parent is not
// listed before it becomes a root of the result.
func (t *Tree) Encode(ids []schema.TabID) schema.TreeStructure {
	return t.encode(ids, false)
}

// EncodeFull is Encode with titles, urls and pinned flags.
func (t *Tree) EncodeFull(ids []schema.TabID) schema.TreeStructure {
	return t.encode(ids, true)
}

func (t *Tree) encode(ids []schema.TabID, full bool) schema.TreeStructure {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encodeLocked(t.resolve(ids), full)
}

func (t *Tree) encodeLocked(records []*tab, full bool) schema.TreeStructure {
	if len(records) == 0 {
		return schema.TreeStructure{}
	}
	position := make(map[schema.TabID]int, len(records))
	for i, record := range records {
		position[record.id] = i
	}
	parents := make([]int, len(records))
	for i, record := range records {
		parents[i] = -1
		if parent := t.parentOf(record); parent != nil {
			if pos, ok := position[parent.id]; ok {
				parents[i] = pos
			}
		}
	}
	parents = cleanUpStructure(parents)
	out := make(schema.TreeStructure, len(records))
	for i, record := range records {
		entry := schema.StructureEntry{
			ID:        record.id,
			Parent:    parents[i],
			Collapsed: record.subtreeCollapsed,
		}
		if full {
			entry.Title = record.title
			entry.URL = record.url
			entry.Pinned = record.pinned
		}
		out[i] = entry
	}
	return out
}

// cleanUpStructure normalizes a parent-index array so every entry points at
// an earlier entry of its own tree, or is -1.
func cleanUpStructure(parents []int) []int {
	out := make([]int, len(parents))
	start := 0
	for i, parent := range parents {
		if parent >= i || parent < start {
			parent = -1
		}
		if parent < 0 {
			start = i
			parent = -1
		}
		out[i] = parent
	}
	return out
}

// Decode applies a serialized structure to ids, pairing entries by position.
// Attaches never move tabs. Collapsed states are restored bottom-up so
// visibility matches the structure.
func (t *Tree) Decode(ctx context.Context, ids []schema.TabID, structure schema.TreeStructure) error {
	ctx = t.logCtx(ctx)
	return t.run(ctx, func() error {
		t.decodeLocked(ctx, t.resolve(ids), structure)
		return nil
	})
}

func (t *Tree) decodeLocked(ctx context.Context, records []*tab, structure schema.TreeStructure) {
	n := min(len(records), len(structure))
	records = records[:n]
	parents := make([]int, n)
	for i := range n {
		parents[i] = structure[i].Parent
	}
	parents = cleanUpStructure(parents)

	start := 0
	for i, record := range records {
		t.detachLocked(ctx, record, DetachOptions{})
		if parents[i] < 0 {
			start = i
			continue
		}
		parent := records[start]
		if parents[i] >= start && parents[i] < i {
			parent = records[parents[i]]
		}
		if parent.windowID != record.windowID {
			continue
		}
		parent.subtreeCollapsed = false
		if err := t.attachLocked(ctx, record, parent, AttachOptions{DontExpand: true, DontMove: true}); err != nil {
			t.log(ctx, record.windowID, record.id).Debug("tree structure entry not applied", "err", err)
		}
	}
	for i := n - 1; i >= 0; i-- {
		t.collapseExpandSubtreeLocked(ctx, records[i], CollapseOptions{
			Collapsed: structure[i].Collapsed,
			Force:     true,
			JustNow:   true,
		})
	}
	if n > 0 {
		t.log(ctx, records[0].windowID, "").Debug("tree structure applied", "tabs", n)
	}
}
