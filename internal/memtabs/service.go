// Package memtabs is an in-process tab service. It keeps windows of ordered
// tabs and reports every change to a listener, the way a browser reports tab
// events to an extension.
package memtabs

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/schema"
)

// Listener receives change notifications. It is called without the service
// lock held, so it may call back into the service.
type Listener interface {
	HandleCreated(ctx context.Context, api schema.APITab) schema.TabID
	HandleRemoved(ctx context.Context, id schema.APITabID)
	HandleMoved(ctx context.Context, api schema.APITab)
	HandleActivated(ctx context.Context, id schema.APITabID)
	HandleUpdated(ctx context.Context, api schema.APITab)
}

// Options configures a Service.
type Options struct {
	Logger pslog.Logger
	// StaleReads makes the next n Get calls for moved tabs report the index
	// they had before the last Move.
	StaleReads int
	// AfterMove runs after every Move, once notifications are delivered.
	AfterMove func(ctx context.Context, ids []schema.APITabID)
}

// Service implements the tab service in memory.
type Service struct {
	mu       sync.Mutex
	tabs     map[schema.APITabID]*schema.APITab
	windows  map[schema.WindowID][]schema.APITabID
	nextID   schema.APITabID
	listener Listener
	log      pslog.Logger

	staleReads int
	stale      map[schema.APITabID]int
	staleLeft  int
	afterMove  func(ctx context.Context, ids []schema.APITabID)
}

// New constructs an empty Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Service{
		tabs:       make(map[schema.APITabID]*schema.APITab),
		windows:    make(map[schema.WindowID][]schema.APITabID),
		nextID:     1,
		log:        logger,
		staleReads: opts.StaleReads,
		afterMove:  opts.AfterMove,
	}
}

// SetListener installs the notification receiver.
func (s *Service) SetListener(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// notification is delivered after the lock is released.
type notification func(ctx context.Context, l Listener)

func (s *Service) deliver(ctx context.Context, notes []notification) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return
	}
	for _, note := range notes {
		note(ctx, listener)
	}
}

// Create opens a tab.
func (s *Service) Create(ctx context.Context, params schema.CreateParams) (schema.APITab, error) {
	if params.WindowID == schema.NoWindow {
		return schema.APITab{}, fmt.Errorf("create tab: %w", schema.ErrWindowNotFound)
	}
	s.mu.Lock()
	api := &schema.APITab{
		ID:           s.nextID,
		PersistentID: params.PersistentID,
		WindowID:     params.WindowID,
		Pinned:       params.Pinned,
		Title:        params.Title,
		URL:          params.URL,
		OpenerTabID:  params.OpenerTabID,
	}
	s.nextID++
	s.tabs[api.ID] = api
	s.insertLocked(api.WindowID, []schema.APITabID{api.ID}, params.Index)
	var notes []notification
	if params.Active || len(s.windows[api.WindowID]) == 1 {
		s.activateLocked(api)
	}
	created := *api
	notes = append(notes, func(ctx context.Context, l Listener) { l.HandleCreated(ctx, created) })
	if created.Active {
		notes = append(notes, func(ctx context.Context, l Listener) { l.HandleActivated(ctx, created.ID) })
	}
	s.mu.Unlock()
	s.log.Trace("memtabs created", "tab", int(created.ID), "window", int(created.WindowID), "index", created.Index)
	s.deliver(ctx, notes)
	return created, nil
}

// Remove closes tabs. Missing ids are reported with schema.ErrMissingTab
// after the others are closed.
func (s *Service) Remove(ctx context.Context, ids []schema.APITabID) error {
	var missing []schema.APITabID
	for _, id := range ids {
		s.mu.Lock()
		api, ok := s.tabs[id]
		if !ok {
			s.mu.Unlock()
			missing = append(missing, id)
			continue
		}
		windowID := api.WindowID
		pos := s.removeLocked(api)
		wasActive := api.Active
		s.mu.Unlock()
		s.log.Trace("memtabs removed", "tab", int(id), "window", int(windowID))
		s.deliver(ctx, []notification{func(ctx context.Context, l Listener) { l.HandleRemoved(ctx, id) }})
		if wasActive {
			s.activateNeighbor(ctx, windowID, pos)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("remove %v: %w", missing, schema.ErrMissingTab)
	}
	return nil
}

// activateNeighbor focuses the tab at pos, or the last one, when nothing in
// the window is active anymore.
func (s *Service) activateNeighbor(ctx context.Context, windowID schema.WindowID, pos int) {
	s.mu.Lock()
	order := s.windows[windowID]
	for _, id := range order {
		if s.tabs[id].Active {
			s.mu.Unlock()
			return
		}
	}
	if len(order) == 0 {
		s.mu.Unlock()
		return
	}
	pos = min(pos, len(order)-1)
	api := s.tabs[order[pos]]
	s.activateLocked(api)
	id := api.ID
	s.mu.Unlock()
	s.deliver(ctx, []notification{func(ctx context.Context, l Listener) { l.HandleActivated(ctx, id) }})
}

// Move places ids contiguously so the first one ends at params.Index of the
// destination window. Tabs from other windows are transferred: the source
// window reports them removed and the destination reports them created.
func (s *Service) Move(ctx context.Context, ids []schema.APITabID, params schema.MoveParams) ([]schema.APITab, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.tabs[id]; !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("move %d: %w", id, schema.ErrMissingTab)
		}
	}
	dest := params.WindowID
	if dest == schema.NoWindow {
		dest = s.tabs[ids[0]].WindowID
	}
	before := make(map[schema.APITabID]int, len(ids))
	transferred := make(map[schema.APITabID]struct{})
	var notes []notification
	for _, id := range ids {
		api := s.tabs[id]
		before[id] = api.Index
		source := api.WindowID
		pos := s.detachLocked(api)
		if source == dest {
			continue
		}
		transferred[id] = struct{}{}
		notes = append(notes, func(ctx context.Context, l Listener) { l.HandleRemoved(ctx, id) })
		if api.Active {
			api.Active = false
			if order := s.windows[source]; len(order) > 0 {
				neighbor := s.tabs[order[min(pos, len(order)-1)]]
				s.activateLocked(neighbor)
				neighborID := neighbor.ID
				notes = append(notes, func(ctx context.Context, l Listener) { l.HandleActivated(ctx, neighborID) })
			}
		}
		api.WindowID = dest
	}
	s.insertLocked(dest, ids, params.Index)
	out := make([]schema.APITab, 0, len(ids))
	for _, id := range ids {
		api := *s.tabs[id]
		out = append(out, api)
		if _, ok := transferred[id]; ok {
			notes = append(notes, func(ctx context.Context, l Listener) { l.HandleCreated(ctx, api) })
			continue
		}
		if before[id] != api.Index {
			notes = append(notes, func(ctx context.Context, l Listener) { l.HandleMoved(ctx, api) })
		}
	}
	if s.staleReads > 0 {
		s.stale = before
		s.staleLeft = s.staleReads
	}
	s.mu.Unlock()
	s.log.Trace("memtabs moved", "tabs", len(ids), "window", int(dest), "index", params.Index)
	s.deliver(ctx, notes)
	if s.afterMove != nil {
		s.afterMove(ctx, ids)
	}
	return out, nil
}

// Get returns a tab.
func (s *Service) Get(_ context.Context, id schema.APITabID) (schema.APITab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	api, ok := s.tabs[id]
	if !ok {
		return schema.APITab{}, fmt.Errorf("get %d: %w", id, schema.ErrMissingTab)
	}
	out := *api
	if index, stale := s.stale[id]; stale && s.staleLeft > 0 {
		s.staleLeft--
		out.Index = index
	}
	return out, nil
}

// Query lists tabs in window order. NoWindow lists every window.
func (s *Service) Query(_ context.Context, filter schema.QueryFilter) ([]schema.APITab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	windows := []schema.WindowID{filter.WindowID}
	if filter.WindowID == schema.NoWindow {
		windows = s.windowsLocked()
	}
	var out []schema.APITab
	for _, windowID := range windows {
		for _, id := range s.windows[windowID] {
			api := s.tabs[id]
			if filter.Active != nil && api.Active != *filter.Active {
				continue
			}
			out = append(out, *api)
		}
	}
	return out, nil
}

// Duplicate opens a copy of a tab right after it.
func (s *Service) Duplicate(ctx context.Context, id schema.APITabID) (schema.APITab, error) {
	s.mu.Lock()
	source, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return schema.APITab{}, fmt.Errorf("duplicate %d: %w", id, schema.ErrMissingTab)
	}
	params := schema.CreateParams{
		WindowID: source.WindowID,
		URL:      source.URL,
		Title:    source.Title,
		Index:    source.Index + 1,
		Pinned:   source.Pinned,
	}
	s.mu.Unlock()
	return s.Create(ctx, params)
}

// Activate focuses a tab.
func (s *Service) Activate(ctx context.Context, id schema.APITabID) error {
	s.mu.Lock()
	api, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("activate %d: %w", id, schema.ErrMissingTab)
	}
	if api.Active {
		s.mu.Unlock()
		return nil
	}
	s.activateLocked(api)
	s.mu.Unlock()
	s.deliver(ctx, []notification{func(ctx context.Context, l Listener) { l.HandleActivated(ctx, id) }})
	return nil
}

// Update changes service-owned attributes of a tab.
func (s *Service) Update(ctx context.Context, id schema.APITabID, fn func(api *schema.APITab)) error {
	s.mu.Lock()
	api, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %d: %w", id, schema.ErrMissingTab)
	}
	fn(api)
	api.ID = id
	updated := *api
	s.mu.Unlock()
	s.deliver(ctx, []notification{func(ctx context.Context, l Listener) { l.HandleUpdated(ctx, updated) }})
	return nil
}

// Windows lists window ids in ascending order.
func (s *Service) Windows() []schema.WindowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowsLocked()
}

func (s *Service) windowsLocked() []schema.WindowID {
	out := make([]schema.WindowID, 0, len(s.windows))
	for id := range s.windows {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Service) insertLocked(windowID schema.WindowID, ids []schema.APITabID, index int) {
	order := s.windows[windowID]
	if index < 0 || index > len(order) {
		index = len(order)
	}
	s.windows[windowID] = slices.Insert(order, index, ids...)
	s.reindexLocked(windowID)
}

// detachLocked takes a tab out of its window order and returns its position.
func (s *Service) detachLocked(api *schema.APITab) int {
	order := s.windows[api.WindowID]
	pos := slices.Index(order, api.ID)
	if pos >= 0 {
		s.windows[api.WindowID] = slices.Delete(order, pos, pos+1)
	}
	s.reindexLocked(api.WindowID)
	return pos
}

func (s *Service) removeLocked(api *schema.APITab) int {
	pos := s.detachLocked(api)
	delete(s.tabs, api.ID)
	return pos
}

func (s *Service) reindexLocked(windowID schema.WindowID) {
	for i, id := range s.windows[windowID] {
		s.tabs[id].Index = i
	}
}

func (s *Service) activateLocked(api *schema.APITab) {
	for _, id := range s.windows[api.WindowID] {
		s.tabs[id].Active = false
	}
	api.Active = true
}
