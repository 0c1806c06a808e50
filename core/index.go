package core

import "pkt.systems/tabtree/schema"

// Structural queries. The lower-case helpers require mu to be held.

func (t *Tree) parentOf(record *tab) *tab {
	if record == nil {
		return nil
	}
	return t.get(record.parent)
}

func (t *Tree) childrenOf(record *tab) []*tab {
	if record == nil || len(record.children) == 0 {
		return nil
	}
	out := make([]*tab, 0, len(record.children))
	for _, id := range record.children {
		if child := t.get(id); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// ancestorsOf walks parent pointers from the closest ancestor outwards and
// stops at the first repeated tab.
func (t *Tree) ancestorsOf(record *tab) []*tab {
	if record == nil {
		return nil
	}
	var out []*tab
	seen := map[schema.TabID]struct{}{record.id: {}}
	for current := t.parentOf(record); current != nil; current = t.parentOf(current) {
		if _, ok := seen[current.id]; ok {
			break
		}
		seen[current.id] = struct{}{}
		out = append(out, current)
	}
	return out
}

// descendantsOf returns the subtree below record in pre-order.
func (t *Tree) descendantsOf(record *tab) []*tab {
	if record == nil {
		return nil
	}
	var out []*tab
	seen := map[schema.TabID]struct{}{record.id: {}}
	var walk func(*tab)
	walk = func(parent *tab) {
		for _, child := range t.childrenOf(parent) {
			if _, ok := seen[child.id]; ok {
				continue
			}
			seen[child.id] = struct{}{}
			out = append(out, child)
			walk(child)
		}
	}
	walk(record)
	return out
}

func (t *Tree) rootOf(record *tab) *tab {
	ancestors := t.ancestorsOf(record)
	if len(ancestors) == 0 {
		return record
	}
	return ancestors[len(ancestors)-1]
}

func (t *Tree) isDescendantOf(record, ancestor *tab) bool {
	if record == nil || ancestor == nil {
		return false
	}
	for _, current := range t.ancestorsOf(record) {
		if current.id == ancestor.id {
			return true
		}
	}
	return false
}

func (t *Tree) nextTabOf(record *tab) *tab {
	if record == nil {
		return nil
	}
	c := t.container(record.windowID)
	pos := c.position(record.id)
	if pos < 0 || pos+1 >= len(c.order) {
		return nil
	}
	return t.get(c.order[pos+1])
}

func (t *Tree) previousTabOf(record *tab) *tab {
	if record == nil {
		return nil
	}
	c := t.container(record.windowID)
	pos := c.position(record.id)
	if pos <= 0 {
		return nil
	}
	return t.get(c.order[pos-1])
}

func (t *Tree) lastTabOf(windowID schema.WindowID) *tab {
	c := t.container(windowID)
	if len(c.order) == 0 {
		return nil
	}
	return t.get(c.order[len(c.order)-1])
}

func (t *Tree) nextSiblingOf(record *tab) *tab {
	if record == nil {
		return nil
	}
	if parent := t.parentOf(record); parent != nil {
		pos := parent.childPosition(record.id)
		if pos < 0 || pos+1 >= len(parent.children) {
			return nil
		}
		return t.get(parent.children[pos+1])
	}
	for next := t.nextTabOf(record); next != nil; next = t.nextTabOf(next) {
		if next.parent == "" {
			return next
		}
	}
	return nil
}

func (t *Tree) previousSiblingOf(record *tab) *tab {
	if record == nil {
		return nil
	}
	if parent := t.parentOf(record); parent != nil {
		pos := parent.childPosition(record.id)
		if pos <= 0 {
			return nil
		}
		return t.get(parent.children[pos-1])
	}
	for prev := t.previousTabOf(record); prev != nil; prev = t.previousTabOf(prev) {
		if prev.parent == "" {
			return prev
		}
	}
	return nil
}

func (t *Tree) firstChildOf(record *tab) *tab {
	if record == nil || len(record.children) == 0 {
		return nil
	}
	return t.get(record.children[0])
}

func (t *Tree) lastChildOf(record *tab) *tab {
	if record == nil || len(record.children) == 0 {
		return nil
	}
	return t.get(record.children[len(record.children)-1])
}

func (t *Tree) lastDescendantOf(record *tab) *tab {
	descendants := t.descendantsOf(record)
	if len(descendants) == 0 {
		return nil
	}
	return descendants[len(descendants)-1]
}

func (t *Tree) visibleAncestorOrSelf(record *tab) *tab {
	if record == nil || !record.collapsed {
		return record
	}
	for _, ancestor := range t.ancestorsOf(record) {
		if !ancestor.collapsed {
			return ancestor
		}
	}
	return record
}

// collectRootTabs keeps the tabs that have no ancestor in the same selection.
func (t *Tree) collectRootTabs(records []*tab) []*tab {
	set := make(map[schema.TabID]struct{}, len(records))
	for _, record := range records {
		set[record.id] = struct{}{}
	}
	var out []*tab
	for _, record := range records {
		inside := false
		for _, ancestor := range t.ancestorsOf(record) {
			if _, ok := set[ancestor.id]; ok {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, record)
		}
	}
	return out
}

// nextFocusedTabOf picks the tab that should take focus when record goes away.
func (t *Tree) nextFocusedTabOf(record *tab, ignored map[schema.TabID]struct{}) *tab {
	skip := func(candidate *tab) bool {
		if candidate == nil {
			return false
		}
		_, ok := ignored[candidate.id]
		return ok
	}
	found := t.nextSiblingOf(record)
	for skip(found) {
		found = t.nextSiblingOf(found)
	}
	if found != nil {
		return found
	}
	found = t.previousVisibleTabOf(record)
	for skip(found) {
		found = t.previousVisibleTabOf(found)
	}
	return found
}

func (t *Tree) previousVisibleTabOf(record *tab) *tab {
	for prev := t.previousTabOf(record); prev != nil; prev = t.previousTabOf(prev) {
		if prev.visible() {
			return prev
		}
	}
	return nil
}

// allPlacedBefore reports whether records already sit contiguously right before next.
func (t *Tree) allPlacedBefore(records []*tab, next *tab) bool {
	if len(records) == 0 {
		return true
	}
	last := records[len(records)-1]
	if next != nil && next.id == last.id {
		next = t.nextTabOf(next)
	}
	if next == nil && t.nextTabOf(last) == nil {
		return true
	}
	previous := records[0]
	for _, record := range records[1:] {
		if p := t.previousTabOf(record); p == nil || p.id != previous.id {
			return false
		}
		previous = record
	}
	if next == nil {
		return false
	}
	n := t.nextTabOf(previous)
	return n != nil && n.id == next.id
}

// allPlacedAfter reports whether records already sit contiguously right after previous.
func (t *Tree) allPlacedAfter(records []*tab, previous *tab) bool {
	if len(records) == 0 {
		return true
	}
	first := records[0]
	if previous != nil && previous.id == first.id {
		previous = t.previousTabOf(previous)
	}
	if previous == nil && t.previousTabOf(first) == nil {
		return true
	}
	next := records[len(records)-1]
	for i := len(records) - 2; i >= 0; i-- {
		record := records[i]
		if n := t.nextTabOf(record); n == nil || n.id != next.id {
			return false
		}
		next = record
	}
	if previous == nil {
		return false
	}
	p := t.previousTabOf(first)
	return p != nil && p.id == previous.id
}

func (t *Tree) resolve(ids []schema.TabID) []*tab {
	out := make([]*tab, 0, len(ids))
	for _, id := range ids {
		if record := t.get(id); record != nil {
			out = append(out, record)
		}
	}
	return out
}

func tabIDs(records []*tab) []schema.TabID {
	if len(records) == 0 {
		return nil
	}
	out := make([]schema.TabID, len(records))
	for i, record := range records {
		out[i] = record.id
	}
	return out
}

func tabID(record *tab) schema.TabID {
	if record == nil {
		return ""
	}
	return record.id
}

// Parent returns the parent of id, or "" for roots and unknown tabs.
func (t *Tree) Parent(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.parentOf(t.get(id)))
}

// Children returns the ordered children of id.
func (t *Tree) Children(id schema.TabID) []schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabIDs(t.childrenOf(t.get(id)))
}

// Ancestors returns the ancestors of id, closest first. It is empty for roots.
func (t *Tree) Ancestors(id schema.TabID) []schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabIDs(t.ancestorsOf(t.get(id)))
}

// Descendants returns the subtree below id in pre-order.
func (t *Tree) Descendants(id schema.TabID) []schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabIDs(t.descendantsOf(t.get(id)))
}

// Root returns the root of the tree containing id.
func (t *Tree) Root(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.rootOf(t.get(id)))
}

// NextSibling returns the next tab with the same parent.
func (t *Tree) NextSibling(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.nextSiblingOf(t.get(id)))
}

// PreviousSibling returns the previous tab with the same parent.
func (t *Tree) PreviousSibling(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.previousSiblingOf(t.get(id)))
}

// IsDescendantOf reports whether id is below ancestor.
func (t *Tree) IsDescendantOf(id, ancestor schema.TabID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isDescendantOf(t.get(id), t.get(ancestor))
}

// FirstChild returns the first child of id.
func (t *Tree) FirstChild(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.firstChildOf(t.get(id)))
}

// LastChild returns the last child of id.
func (t *Tree) LastChild(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.lastChildOf(t.get(id)))
}

// LastDescendant returns the last tab of the subtree below id.
func (t *Tree) LastDescendant(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.lastDescendantOf(t.get(id)))
}

// NextTab returns the physically next tab.
func (t *Tree) NextTab(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.nextTabOf(t.get(id)))
}

// PreviousTab returns the physically previous tab.
func (t *Tree) PreviousTab(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.previousTabOf(t.get(id)))
}

// VisibleAncestorOrSelf returns id when visible, otherwise its closest expanded ancestor.
func (t *Tree) VisibleAncestorOrSelf(id schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabID(t.visibleAncestorOrSelf(t.get(id)))
}

// CollectRootTabs returns the members of ids that have no ancestor in ids.
func (t *Tree) CollectRootTabs(ids []schema.TabID) []schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tabIDs(t.collectRootTabs(t.resolve(ids)))
}

// NextFocusedTab returns the tab to focus when id closes, skipping ignored tabs.
func (t *Tree) NextFocusedTab(id schema.TabID, ignored ...schema.TabID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := make(map[schema.TabID]struct{}, len(ignored))
	for _, ignore := range ignored {
		set[ignore] = struct{}{}
	}
	return tabID(t.nextFocusedTabOf(t.get(id), set))
}
