package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/schema"

	_ "modernc.org/sqlite"
)

// SQLiteFile is the database file name used inside the state directory.
const SQLiteFile = "tabtree.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS windows (
    window_id INTEGER PRIMARY KEY,
    saved_at  INTEGER NOT NULL,
    active    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entries (
    window_id INTEGER NOT NULL,
    position  INTEGER NOT NULL,
    tab_id    TEXT NOT NULL,
    parent    INTEGER NOT NULL,
    collapsed INTEGER NOT NULL DEFAULT 0,
    title     TEXT NOT NULL DEFAULT '',
    url       TEXT NOT NULL DEFAULT '',
    pinned    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (window_id, position)
);
`

// SQLiteStore persists window structures in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log pslog.Logger
}

// NewSQLiteStore opens (or creates) the database under dir.
func NewSQLiteStore(dir string, logger pslog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, SQLiteFile)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &SQLiteStore{db: db, log: logger.With("state_db", path)}, nil
}

// SaveWindow replaces the stored structure of a window in one transaction.
func (s *SQLiteStore) SaveWindow(ctx context.Context, state schema.WindowState) error {
	log := s.log.With("window", int(state.WindowID))
	if err := s.save(ctx, state); err != nil {
		log.Warn("state save failed", "err", err)
		return err
	}
	log.Trace("state save ok", "tabs", len(state.Structure))
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, state schema.WindowState) error {
	if state.WindowID == schema.NoWindow {
		return fmt.Errorf("save window: %w", schema.ErrWindowNotFound)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	savedAt := state.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO windows (window_id, saved_at, active) VALUES (?, ?, ?)
		 ON CONFLICT(window_id) DO UPDATE SET saved_at = excluded.saved_at, active = excluded.active`,
		int(state.WindowID), savedAt.UnixNano(), string(state.Active)); err != nil {
		return fmt.Errorf("save window row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE window_id = ?`, int(state.WindowID)); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (window_id, position, tab_id, parent, collapsed, title, url, pinned)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, entry := range state.Structure {
		if _, err := stmt.ExecContext(ctx, int(state.WindowID), i, string(entry.ID), entry.Parent,
			boolInt(entry.Collapsed), entry.Title, entry.URL, boolInt(entry.Pinned)); err != nil {
			return fmt.Errorf("save entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadWindow reads the stored structure of a window.
func (s *SQLiteStore) LoadWindow(ctx context.Context, windowID schema.WindowID) (schema.WindowState, bool, error) {
	log := s.log.With("window", int(windowID))
	state, ok, err := s.load(ctx, windowID)
	if err != nil {
		log.Warn("state load failed", "err", err)
		return schema.WindowState{}, false, err
	}
	if !ok {
		log.Debug("state load miss")
		return schema.WindowState{}, false, nil
	}
	log.Debug("state load ok", "tabs", len(state.Structure))
	return state, true, nil
}

func (s *SQLiteStore) load(ctx context.Context, windowID schema.WindowID) (schema.WindowState, bool, error) {
	var savedAt int64
	var active string
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at, active FROM windows WHERE window_id = ?`, int(windowID)).Scan(&savedAt, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.WindowState{}, false, nil
	}
	if err != nil {
		return schema.WindowState{}, false, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tab_id, parent, collapsed, title, url, pinned FROM entries
		 WHERE window_id = ? ORDER BY position`, int(windowID))
	if err != nil {
		return schema.WindowState{}, false, err
	}
	defer rows.Close()
	state := schema.WindowState{
		WindowID:  windowID,
		SavedAt:   time.Unix(0, savedAt),
		Active:    schema.TabID(active),
		Structure: schema.TreeStructure{},
	}
	for rows.Next() {
		var entry schema.StructureEntry
		var id string
		var collapsed, pinned int
		if err := rows.Scan(&id, &entry.Parent, &collapsed, &entry.Title, &entry.URL, &pinned); err != nil {
			return schema.WindowState{}, false, err
		}
		entry.ID = schema.TabID(id)
		entry.Collapsed = collapsed != 0
		entry.Pinned = pinned != 0
		state.Structure = append(state.Structure, entry)
	}
	if err := rows.Err(); err != nil {
		return schema.WindowState{}, false, err
	}
	return state, true, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
