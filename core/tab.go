package core

import "pkt.systems/tabtree/schema"

// tab is the tree record mirroring one external tab.
type tab struct {
	id       schema.TabID
	apiID    schema.APITabID
	windowID schema.WindowID
	index    int
	title    string
	url      string
	opener   schema.APITabID

	parent   schema.TabID
	children []schema.TabID
	level    int

	pinned           bool
	hidden           bool
	active           bool
	collapsed        bool
	subtreeCollapsed bool
	expandedManually bool
	removing         bool
	groupTab         bool
	duplicating      bool
}

func newTab(id schema.TabID, api schema.APITab) *tab {
	t := &tab{
		id:       id,
		apiID:    api.ID,
		windowID: api.WindowID,
		index:    api.Index,
		opener:   api.OpenerTabID,
		active:   api.Active,
	}
	t.update(api)
	if t.pinned {
		t.level = schema.NoLevel
	}
	return t
}

// update copies service-owned attributes. Focus is tracked by the container.
func (t *tab) update(api schema.APITab) {
	t.title = api.Title
	t.url = api.URL
	t.pinned = api.Pinned
	t.hidden = api.Hidden
}

func (t *tab) hasChildren() bool {
	return len(t.children) > 0
}

func (t *tab) childPosition(id schema.TabID) int {
	for i, child := range t.children {
		if child == id {
			return i
		}
	}
	return -1
}

func (t *tab) removeChild(id schema.TabID) bool {
	pos := t.childPosition(id)
	if pos < 0 {
		return false
	}
	t.children = append(t.children[:pos:pos], t.children[pos+1:]...)
	return true
}

// visible reports whether the tab is shown in the tree.
func (t *tab) visible() bool {
	return !t.collapsed && !t.hidden
}
