package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"pkt.systems/pslog"
	"pkt.systems/tabtree/schema"
)

// Store persists window structures as JSON files, one per window.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Store{dir: dir, log: logger.With("state_dir", dir)}, nil
}

// LoadWindow reads a window structure from disk.
func (s *Store) LoadWindow(ctx context.Context, windowID schema.WindowID) (schema.WindowState, bool, error) {
	if err := ctx.Err(); err != nil {
		return schema.WindowState{}, false, err
	}
	log := s.log.With("window", int(windowID))
	data, err := os.ReadFile(s.pathForWindow(windowID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("state load miss")
			return schema.WindowState{}, false, nil
		}
		log.Warn("state load failed", "err", err)
		return schema.WindowState{}, false, err
	}
	var state schema.WindowState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("state load failed", "err", err)
		return schema.WindowState{}, false, fmt.Errorf("decode window %d: %w", windowID, err)
	}
	if state.WindowID == schema.NoWindow {
		state.WindowID = windowID
	}
	log.Debug("state load ok", "tabs", len(state.Structure))
	return state, true, nil
}

// SaveWindow writes a window structure to disk atomically.
func (s *Store) SaveWindow(ctx context.Context, state schema.WindowState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := s.log.With("window", int(state.WindowID))
	if err := s.save(state); err != nil {
		log.Warn("state save failed", "err", err)
		return err
	}
	log.Trace("state save ok", "tabs", len(state.Structure))
	return nil
}

func (s *Store) save(state schema.WindowState) error {
	if state.WindowID == schema.NoWindow {
		return fmt.Errorf("save window: %w", schema.ErrWindowNotFound)
	}
	path := s.pathForWindow(state.WindowID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "window-*.json.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Close implements Backend.
func (s *Store) Close() error { return nil }

func (s *Store) pathForWindow(windowID schema.WindowID) string {
	return filepath.Join(s.dir, "window-"+strconv.Itoa(int(windowID))+".json")
}
