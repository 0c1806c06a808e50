package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/core"
	"pkt.systems/tabtree/internal/memtabs"
	"pkt.systems/tabtree/schema"
)

// Scenario describes windows of tabs and a list of tree operations to run
// against an in-process tab service.
type Scenario struct {
	Windows []ScenarioWindow `yaml:"windows" json:"windows"`
	Steps   []Step           `yaml:"steps" json:"steps"`
}

// ScenarioWindow lists the tabs a window starts with.
type ScenarioWindow struct {
	ID   schema.WindowID `yaml:"id" json:"id"`
	Tabs []ScenarioTab   `yaml:"tabs" json:"tabs"`
}

// ScenarioTab describes one tab to open.
type ScenarioTab struct {
	ID     schema.TabID `yaml:"id" json:"id"`
	Title  string       `yaml:"title" json:"title"`
	URL    string       `yaml:"url" json:"url"`
	Pinned bool         `yaml:"pinned" json:"pinned"`
	Active bool         `yaml:"active" json:"active"`
	Opener schema.TabID `yaml:"opener" json:"opener"`
}

// Step is one operation. Only the fields used by Op are read.
type Step struct {
	Op        string               `yaml:"op" json:"op"`
	Tab       schema.TabID         `yaml:"tab" json:"tab"`
	Tabs      []schema.TabID       `yaml:"tabs" json:"tabs"`
	Parent    schema.TabID         `yaml:"parent" json:"parent"`
	Ref       schema.TabID         `yaml:"ref" json:"ref"`
	Window    schema.WindowID      `yaml:"window" json:"window"`
	Duplicate bool                 `yaml:"duplicate" json:"duplicate"`
	Title     string               `yaml:"title" json:"title"`
	Structure schema.TreeStructure `yaml:"structure" json:"structure"`
}

// Report is the outcome of a scenario.
type Report struct {
	Windows []WindowReport `yaml:"windows" json:"windows"`
}

// WindowReport is the final tree of one window.
type WindowReport struct {
	ID        schema.WindowID      `yaml:"id" json:"id"`
	Active    schema.TabID         `yaml:"active,omitempty" json:"active,omitempty"`
	Tree      []string             `yaml:"tree" json:"tree"`
	Structure schema.TreeStructure `yaml:"structure" json:"structure"`
}

func loadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	var sc Scenario
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &sc)
	} else {
		err = yaml.Unmarshal(data, &sc)
	}
	if err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(sc.Windows) == 0 {
		return Scenario{}, fmt.Errorf("scenario %s: no windows", path)
	}
	return sc, nil
}

// runner executes scenario steps against a tree wired to svc.
type runner struct {
	tree *core.Tree
	svc  *memtabs.Service
}

func (r *runner) open(ctx context.Context, sc Scenario) error {
	for _, window := range sc.Windows {
		if window.ID == schema.NoWindow {
			return fmt.Errorf("window id must be positive")
		}
		for _, tab := range window.Tabs {
			params := schema.CreateParams{
				WindowID:     window.ID,
				PersistentID: tab.ID,
				URL:          tab.URL,
				Title:        tab.Title,
				Index:        -1,
				Pinned:       tab.Pinned,
				Active:       tab.Active,
			}
			if tab.Title == "" {
				params.Title = string(tab.ID)
			}
			if tab.Opener != "" {
				opener, err := r.apiID(tab.Opener)
				if err != nil {
					return err
				}
				params.OpenerTabID = opener
			}
			if _, err := r.svc.Create(ctx, params); err != nil {
				return fmt.Errorf("open %s: %w", tab.ID, err)
			}
		}
	}
	return nil
}

func (r *runner) run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		log := pslog.Ctx(ctx).With("step", i+1, "op", step.Op)
		if err := r.step(ctx, step); err != nil {
			log.Warn("scenario step failed", "err", err)
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		log.Debug("scenario step ok")
	}
	return nil
}

func (r *runner) step(ctx context.Context, step Step) error {
	opts := core.MoveOptions{Broadcast: true}
	switch strings.ToLower(strings.TrimSpace(step.Op)) {
	case "attach":
		return r.tree.Attach(ctx, step.Tab, step.Parent, core.AttachOptions{Broadcast: true})
	case "detach":
		return r.tree.Detach(ctx, step.Tab, core.DetachOptions{Broadcast: true})
	case "move_before":
		r.tree.MoveBefore(ctx, step.Tabs, step.Ref, opts)
		return nil
	case "move_after":
		r.tree.MoveAfter(ctx, step.Tabs, step.Ref, opts)
		return nil
	case "move_subtree_before":
		return r.tree.MoveSubtreeBefore(ctx, step.Tab, step.Ref, opts)
	case "move_subtree_after":
		return r.tree.MoveSubtreeAfter(ctx, step.Tab, step.Ref, opts)
	case "collapse", "expand":
		return r.tree.ManualCollapseExpandSubtree(ctx, step.Tab, step.Op == "collapse")
	case "activate":
		id, err := r.apiID(step.Tab)
		if err != nil {
			return err
		}
		return r.svc.Activate(ctx, id)
	case "close":
		ids := make([]schema.APITabID, 0, len(step.Tabs))
		for _, tab := range step.Tabs {
			id, err := r.apiID(tab)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return r.svc.Remove(ctx, ids)
	case "rename":
		id, err := r.apiID(step.Tab)
		if err != nil {
			return err
		}
		return r.svc.Update(ctx, id, func(api *schema.APITab) { api.Title = step.Title })
	case "group":
		_, err := r.tree.GroupTabs(ctx, step.Tabs)
		return err
	case "move_tabs":
		_, err := r.tree.MoveTabs(ctx, step.Tabs, core.MoveTabsOptions{
			DestinationWindow: step.Window,
			InsertAfter:       step.Ref,
			Duplicate:         step.Duplicate,
		})
		return err
	case "drop":
		_, err := r.tree.PerformDragDrop(ctx, core.DragDropParams{
			Tabs:              step.Tabs,
			DestinationWindow: step.Window,
			AttachTo:          step.Parent,
			InsertAfter:       step.Ref,
			Attach:            true,
			Duplicate:         step.Duplicate,
		})
		return err
	case "decode":
		ids := make([]schema.TabID, 0, len(step.Structure))
		for _, entry := range step.Structure {
			ids = append(ids, entry.ID)
		}
		return r.tree.Decode(ctx, ids, step.Structure)
	case "save":
		return r.tree.SaveWindow(ctx, step.Window)
	case "restore":
		restored, err := r.tree.RestoreWindow(ctx, step.Window)
		if err == nil && !restored {
			pslog.Ctx(ctx).Info("scenario restore found no saved window", "window", int(step.Window))
		}
		return err
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (r *runner) apiID(id schema.TabID) (schema.APITabID, error) {
	view, ok := r.tree.Tab(id)
	if !ok {
		return 0, fmt.Errorf("%s: %w", id, schema.ErrTabNotFound)
	}
	return view.APIID, nil
}

func (r *runner) report() Report {
	var out Report
	for _, windowID := range r.tree.Windows() {
		order := r.tree.Order(windowID)
		window := WindowReport{
			ID:        windowID,
			Active:    r.tree.ActiveTab(windowID),
			Tree:      []string{},
			Structure: r.tree.EncodeFull(order),
		}
		for _, id := range order {
			view, ok := r.tree.Tab(id)
			if !ok {
				continue
			}
			window.Tree = append(window.Tree, renderLine(view))
		}
		out.Windows = append(out.Windows, window)
	}
	return out
}

func renderLine(view schema.TabView) string {
	var b strings.Builder
	if view.Level == schema.NoLevel {
		b.WriteString("^ ")
	} else {
		b.WriteString(strings.Repeat("  ", view.Level))
	}
	switch {
	case len(view.Children) > 0 && view.Collapsed:
		b.WriteString("+ ")
	case len(view.Children) > 0:
		b.WriteString("- ")
	default:
		b.WriteString("  ")
	}
	b.WriteString(string(view.ID))
	if view.Title != "" && view.Title != string(view.ID) {
		b.WriteString(" ")
		b.WriteString(view.Title)
	}
	if view.Active {
		b.WriteString(" *")
	}
	return b.String()
}
