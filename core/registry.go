package core

import (
	"context"
	"fmt"
	"slices"

	"pkt.systems/tabtree/schema"
)

func (t *Tree) get(id schema.TabID) *tab {
	if id == "" {
		return nil
	}
	return t.tabs[id]
}

func (t *Tree) getByAPI(apiID schema.APITabID) *tab {
	id, ok := t.byAPI[apiID]
	if !ok {
		return nil
	}
	return t.tabs[id]
}

func (t *Tree) container(windowID schema.WindowID) *container {
	c, ok := t.windows[windowID]
	if !ok {
		c = newContainer(windowID)
		t.windows[windowID] = c
	}
	return c
}

// registerLocked adds a tab reported by the service. A known external id only
// refreshes the record.
func (t *Tree) registerLocked(api schema.APITab) (*tab, bool) {
	if existing := t.getByAPI(api.ID); existing != nil {
		existing.update(api)
		return existing, false
	}
	id := api.PersistentID
	if id == "" || t.tabs[id] != nil {
		id = schema.TabID(newID())
	}
	record := newTab(id, api)
	c := t.container(api.WindowID)
	pos := api.Index
	if pos < 0 || pos > len(c.order) {
		pos = len(c.order)
	}
	c.insert(id, pos)
	t.tabs[id] = record
	t.byAPI[api.ID] = id
	t.restampFrom(c, pos)
	if record.active {
		t.setActiveLocked(c, record, true)
	}
	t.emit(schema.TreeEvent{Type: schema.TreeEventCreated, WindowID: api.WindowID, Tab: id})
	return record, true
}

// unregisterLocked drops a record. Tree pointers must already be cleared.
func (t *Tree) unregisterLocked(record *tab) {
	c := t.container(record.windowID)
	pos := c.remove(record.id)
	delete(t.tabs, record.id)
	if t.byAPI[record.apiID] == record.id {
		delete(t.byAPI, record.apiID)
	}
	c.drop(expectMove, record.apiID)
	c.drop(expectFocus, record.apiID)
	if c.active == record.id {
		c.active = ""
	}
	if pos >= 0 {
		t.restampFrom(c, pos)
	}
	t.emit(schema.TreeEvent{Type: schema.TreeEventRemoved, WindowID: record.windowID, Tab: record.id})
}

// restampFrom rewrites cached indices from pos to the end of the window.
func (t *Tree) restampFrom(c *container, pos int) {
	t.restampRange(c, pos, len(c.order)-1)
}

func (t *Tree) restampRange(c *container, from, to int) {
	if from < 0 {
		from = 0
	}
	for i := from; i <= to && i < len(c.order); i++ {
		if record := t.tabs[c.order[i]]; record != nil {
			record.index = i
		}
	}
}

func (t *Tree) setActiveLocked(c *container, record *tab, silently bool) {
	previous := c.active
	if previous == record.id {
		record.active = true
		return
	}
	if prev := t.get(previous); prev != nil {
		prev.active = false
	}
	record.active = true
	c.active = record.id
	t.emit(schema.TreeEvent{
		Type:      schema.TreeEventActivated,
		WindowID:  c.windowID,
		Tab:       record.id,
		Activated: schema.ActivatedEvent{Previous: previous, Silently: silently},
	})
}

// LoadWindow registers every tab the service reports for a window, in index order.
func (t *Tree) LoadWindow(ctx context.Context, windowID schema.WindowID) error {
	ctx = t.logCtx(ctx)
	apiTabs, err := t.svc.Query(ctx, schema.QueryFilter{WindowID: windowID})
	if err != nil {
		return fmt.Errorf("query window %d: %w", windowID, err)
	}
	slices.SortFunc(apiTabs, func(a, b schema.APITab) int { return a.Index - b.Index })
	return t.run(ctx, func() error {
		for _, api := range apiTabs {
			t.registerLocked(api)
		}
		t.log(ctx, windowID, "").Info("tree window loaded", "tabs", len(apiTabs))
		return nil
	})
}

// Tab returns a view of one tab.
func (t *Tree) Tab(id schema.TabID) (schema.TabView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record := t.get(id)
	if record == nil {
		return schema.TabView{}, false
	}
	return t.viewLocked(record, false), true
}

// Lookup maps an external id to the tree id.
func (t *Tree) Lookup(apiID schema.APITabID) (schema.TabID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byAPI[apiID]
	return id, ok
}

// Order returns the local tab sequence of a window.
func (t *Tree) Order(windowID schema.WindowID) []schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.windows[windowID]
	if !ok {
		return nil
	}
	return slices.Clone(c.order)
}

// Windows returns the known window ids in ascending order.
func (t *Tree) Windows() []schema.WindowID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]schema.WindowID, 0, len(t.windows))
	for id := range t.windows {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ActiveTab returns the active tab of a window.
func (t *Tree) ActiveTab(windowID schema.WindowID) schema.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.windows[windowID]; ok {
		return c.active
	}
	return ""
}

// Counters returns the in-flight counters of a window.
func (t *Tree) Counters(windowID schema.WindowID) (Counters, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.windows[windowID]
	if !ok {
		return Counters{}, false
	}
	return c.counters, true
}

// BlockUserOperations marks a window busy. Blocks nest.
func (t *Tree) BlockUserOperations(ctx context.Context, windowID schema.WindowID, throbber bool) {
	ctx = t.logCtx(ctx)
	_ = t.run(ctx, func() error {
		t.blockLocked(windowID, throbber, true)
		return nil
	})
}

// UnblockUserOperations releases one block.
func (t *Tree) UnblockUserOperations(ctx context.Context, windowID schema.WindowID, throbber bool) {
	ctx = t.logCtx(ctx)
	_ = t.run(ctx, func() error {
		t.unblockLocked(windowID, throbber, true)
		return nil
	})
}

// Blocked reports whether user operations are blocked for a window.
func (t *Tree) Blocked(windowID schema.WindowID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.windows[windowID]
	return ok && c.counters.Blocking > 0
}

func (t *Tree) blockLocked(windowID schema.WindowID, throbber, broadcast bool) {
	c := t.container(windowID)
	c.counters.Blocking++
	if throbber {
		c.counters.BlockingThrobber++
	}
	if broadcast {
		t.publish(schema.Command{Type: schema.CommandBlockUserOperations, WindowID: windowID, Throbber: throbber})
	}
}

func (t *Tree) unblockLocked(windowID schema.WindowID, throbber, broadcast bool) {
	c := t.container(windowID)
	decrement(&c.counters.Blocking, 1)
	if throbber {
		decrement(&c.counters.BlockingThrobber, 1)
	}
	if broadcast {
		t.publish(schema.Command{Type: schema.CommandUnblockUserOperations, WindowID: windowID, Throbber: throbber})
	}
}
