package schema

// TabID is the stable, persistent identifier of a tab inside the tree.
type TabID string

// APITabID is the identifier assigned by the external tab service. It can be
// reassigned across restarts and duplication.
type APITabID int

// WindowID identifies a window (tab container).
type WindowID int

// NoWindow is the zero window id.
const NoWindow WindowID = 0

// NoLevel is the level reported for pinned tabs, which are never indented.
const NoLevel = -1

// APITab is the external tab service's view of a tab.
type APITab struct {
	ID           APITabID `json:"id"`
	PersistentID TabID    `json:"persistent_id,omitempty"`
	WindowID     WindowID `json:"window_id"`
	Index        int      `json:"index"`
	Pinned       bool     `json:"pinned,omitempty"`
	Active       bool     `json:"active,omitempty"`
	Hidden       bool     `json:"hidden,omitempty"`
	Title        string   `json:"title,omitempty"`
	URL          string   `json:"url,omitempty"`
	OpenerTabID  APITabID `json:"opener_tab_id,omitempty"`
}

// CreateParams describes a tab creation request to the external service.
// Index -1 appends the tab.
type CreateParams struct {
	WindowID     WindowID
	PersistentID TabID
	URL          string
	Title        string
	Index        int
	Pinned       bool
	Active       bool
	OpenerTabID  APITabID
}

// MoveParams describes a physical move request to the external service.
// Index is the final index of the first moved tab; -1 appends.
type MoveParams struct {
	WindowID WindowID
	Index    int
}

// QueryFilter selects tabs from the external service.
type QueryFilter struct {
	WindowID WindowID
	Active   *bool
}
