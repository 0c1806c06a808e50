package core

import "pkt.systems/tabtree/schema"

// Counters reports the in-flight operations of one window.
type Counters struct {
	SubtreeMoving           int `json:"subtree_moving"`
	SubtreeChildrenMoving   int `json:"subtree_children_moving"`
	InternalMoving          int `json:"internal_moving"`
	AlreadyMoved            int `json:"already_moved"`
	IntelligentCollapse     int `json:"intelligent_collapse"`
	ToBeOpenedWithPositions int `json:"to_be_opened_with_positions"`
	ToBeOpenedOrphans       int `json:"to_be_opened_orphans"`
	ToBeAttached            int `json:"to_be_attached"`
	ToBeDetached            int `json:"to_be_detached"`
	Duplicating             int `json:"duplicating"`
	InternalFocus           int `json:"internal_focus"`
	InternalClosing         int `json:"internal_closing"`
	Blocking                int `json:"blocking"`
	BlockingThrobber        int `json:"blocking_throbber"`
}

// expectKind names a service notification this process is waiting for.
type expectKind int

const (
	expectMove expectKind = iota
	expectFocus
	expectClose
)

// container owns the ordered tab sequence of one window.
type container struct {
	windowID schema.WindowID
	order    []schema.TabID
	active   schema.TabID
	counters Counters
	// expected holds notifications caused by this process, per external id.
	expected map[expectKind]map[schema.APITabID]int
}

func newContainer(windowID schema.WindowID) *container {
	return &container{
		windowID: windowID,
		expected: map[expectKind]map[schema.APITabID]int{
			expectMove:  {},
			expectFocus: {},
			expectClose: {},
		},
	}
}

func (c *container) position(id schema.TabID) int {
	for i, current := range c.order {
		if current == id {
			return i
		}
	}
	return -1
}

func (c *container) insert(id schema.TabID, pos int) {
	if pos < 0 || pos > len(c.order) {
		pos = len(c.order)
	}
	c.order = append(c.order, "")
	copy(c.order[pos+1:], c.order[pos:])
	c.order[pos] = id
}

func (c *container) remove(id schema.TabID) int {
	pos := c.position(id)
	if pos < 0 {
		return -1
	}
	c.order = append(c.order[:pos:pos], c.order[pos+1:]...)
	return pos
}

func (c *container) counterFor(kind expectKind) *int {
	switch kind {
	case expectFocus:
		return &c.counters.InternalFocus
	case expectClose:
		return &c.counters.InternalClosing
	default:
		return &c.counters.InternalMoving
	}
}

func (c *container) expect(kind expectKind, apiID schema.APITabID) {
	c.expected[kind][apiID]++
	*c.counterFor(kind)++
}

// consume reports whether a notification was caused by this process.
func (c *container) consume(kind expectKind, apiID schema.APITabID) bool {
	pending := c.expected[kind]
	n := pending[apiID]
	if n <= 0 {
		return false
	}
	if n == 1 {
		delete(pending, apiID)
	} else {
		pending[apiID] = n - 1
	}
	decrement(c.counterFor(kind), 1)
	return true
}

// drop forgets notifications that did not arrive for a finished request.
func (c *container) drop(kind expectKind, apiIDs ...schema.APITabID) {
	pending := c.expected[kind]
	for _, apiID := range apiIDs {
		if n := pending[apiID]; n > 0 {
			delete(pending, apiID)
			decrement(c.counterFor(kind), n)
		}
	}
}

func decrement(counter *int, n int) {
	*counter -= n
	if *counter < 0 {
		*counter = 0
	}
}
