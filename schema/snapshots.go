package schema

import "time"

// StructureEntry is one item of a serialized tree structure. Parent is the
// index of the parent within the same structure, or -1 for a root of the slice.
type StructureEntry struct {
	ID        TabID  `json:"id"`
	Parent    int    `json:"parent"`
	Collapsed bool   `json:"collapsed"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Pinned    bool   `json:"pinned,omitempty"`
}

// TreeStructure is the wire format of a serialized tree.
type TreeStructure []StructureEntry

// Parents returns the parent-index array.
func (s TreeStructure) Parents() []int {
	out := make([]int, len(s))
	for i, entry := range s {
		out[i] = entry.Parent
	}
	return out
}

// TabView is a serializable view of one tab for renderers and integrations.
type TabView struct {
	ID        TabID    `json:"id"`
	APIID     APITabID `json:"api_id"`
	WindowID  WindowID `json:"window_id"`
	Index     int      `json:"index"`
	URL       string   `json:"url,omitempty"`
	Title     string   `json:"title,omitempty"`
	Active    bool     `json:"active"`
	Collapsed bool     `json:"collapsed"`
	Level     int      `json:"level"`
	Parent    TabID    `json:"parent,omitempty"`
	Next      TabID    `json:"next,omitempty"`
	Previous  TabID    `json:"previous,omitempty"`
	Children  []TabID  `json:"children"`
}

// TreeSnapshot is the serializable view produced by SnapshotTree.
type TreeSnapshot struct {
	Target   *TabView          `json:"target,omitempty"`
	Active   *TabView          `json:"active,omitempty"`
	Tabs     []TabView         `json:"tabs"`
	TabsByID map[TabID]TabView `json:"tabs_by_id"`
}

// WindowState is the persisted structure of one window.
type WindowState struct {
	WindowID  WindowID      `json:"window_id"`
	SavedAt   time.Time     `json:"saved_at"`
	Structure TreeStructure `json:"structure"`
	Active    TabID         `json:"active,omitempty"`
}
