package core

import "pkt.systems/tabtree/schema"

func (t *Tree) viewLocked(record *tab, links bool) schema.TabView {
	view := schema.TabView{
		ID:        record.id,
		APIID:     record.apiID,
		WindowID:  record.windowID,
		Index:     record.index,
		URL:       record.url,
		Title:     record.title,
		Active:    record.active,
		Collapsed: record.subtreeCollapsed,
		Level:     record.level,
		Parent:    record.parent,
		Children:  []schema.TabID{},
	}
	for _, child := range t.childrenOf(record) {
		if !links || !child.hidden {
			view.Children = append(view.Children, child.id)
		}
	}
	if links {
		view.Next = tabID(t.nextNormalTabOf(record))
		view.Previous = tabID(t.previousNormalTabOf(record))
	}
	return view
}

func (t *Tree) nextNormalTabOf(record *tab) *tab {
	for next := t.nextTabOf(record); next != nil; next = t.nextTabOf(next) {
		if !next.pinned && !next.hidden {
			return next
		}
	}
	return nil
}

func (t *Tree) previousNormalTabOf(record *tab) *tab {
	for prev := t.previousTabOf(record); prev != nil; prev = t.previousTabOf(prev) {
		if !prev.pinned && !prev.hidden {
			return prev
		}
	}
	return nil
}

// SnapshotTree returns a view of the unpinned, shown tabs among ids. With no
// ids the whole window of target is used.
func (t *Tree) SnapshotTree(target schema.TabID, ids []schema.TabID) schema.TreeSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := schema.TreeSnapshot{
		Tabs:     []schema.TabView{},
		TabsByID: map[schema.TabID]schema.TabView{},
	}
	targetTab := t.get(target)
	records := t.resolve(ids)
	if len(ids) == 0 && targetTab != nil {
		records = t.resolve(t.container(targetTab.windowID).order)
	}
	for _, record := range records {
		if record.pinned || record.hidden {
			continue
		}
		view := t.viewLocked(record, true)
		out.Tabs = append(out.Tabs, view)
		out.TabsByID[record.id] = view
	}
	if view, ok := out.TabsByID[target]; ok {
		out.Target = &view
	}
	if targetTab != nil {
		if view, ok := out.TabsByID[t.container(targetTab.windowID).active]; ok {
			out.Active = &view
		}
	}
	return out
}
