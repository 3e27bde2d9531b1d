package checklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS checklist_categories (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS checklist_sections (
    id          INTEGER PRIMARY KEY,
    category_id INTEGER NOT NULL REFERENCES checklist_categories(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    "order"     INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS checklist_items (
    id           INTEGER PRIMARY KEY,
    section_id   INTEGER NOT NULL REFERENCES checklist_sections(id) ON DELETE CASCADE,
    description  TEXT NOT NULL,
    is_completed INTEGER NOT NULL DEFAULT 0,
    notes        TEXT NOT NULL DEFAULT '',
    checked_by   TEXT NOT NULL DEFAULT '',
    last_checked TEXT NOT NULL DEFAULT '',
    "order"      INTEGER NOT NULL,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sections_category ON checklist_sections(category_id);
CREATE INDEX IF NOT EXISTS idx_items_section ON checklist_items(section_id);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default database path (~/.local/share/vesselcheck/checklist.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "vesselcheck", "checklist.db"), nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from being split across the pool.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// DB exposes the underlying connection (used by seeding and health checks).
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Ping checks the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Forest(ctx context.Context) ([]Category, error) {
	cats, err := s.categories(ctx)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, nil
	}

	sections, err := s.sections(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.items(ctx)
	if err != nil {
		return nil, err
	}

	itemsBySection := make(map[int64][]Item)
	for _, it := range items {
		itemsBySection[it.SectionID] = append(itemsBySection[it.SectionID], it)
	}
	sectionsByCategory := make(map[int64][]Section)
	for _, sec := range sections {
		sec.Items = itemsBySection[sec.ID]
		if sec.Items == nil {
			sec.Items = []Item{}
		}
		sectionsByCategory[sec.CategoryID] = append(sectionsByCategory[sec.CategoryID], sec)
	}
	for i := range cats {
		cats[i].Sections = sectionsByCategory[cats[i].ID]
		if cats[i].Sections == nil {
			cats[i].Sections = []Section{}
		}
	}
	return cats, nil
}

func (s *SQLiteStore) categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description FROM checklist_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *SQLiteStore) sections(ctx context.Context) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, name, description, "order"
		FROM checklist_sections ORDER BY "order", id`)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.CategoryID, &sec.Name, &sec.Description, &sec.Order); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

const selectItemSQL = `
	SELECT id, section_id, description, is_completed, notes, checked_by, last_checked, "order"
	FROM checklist_items`

func (s *SQLiteStore) items(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, selectItemSQL+` ORDER BY "order", id`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		it          Item
		lastChecked string
	)
	if err := row.Scan(&it.ID, &it.SectionID, &it.Description, &it.Completed,
		&it.Notes, &it.CheckedBy, &lastChecked, &it.Order); err != nil {
		return Item{}, err
	}
	if lastChecked != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastChecked); err == nil {
			it.LastChecked = &t
		}
	}
	return it, nil
}

func (s *SQLiteStore) Item(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, selectItemSQL+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("load item %d: %w", id, err)
	}
	return it, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, muts []Mutation) error {
	if len(muts) == 0 {
		return ErrEmptyCommit
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	for _, m := range muts {
		res, err := tx.ExecContext(ctx, `
			UPDATE checklist_items SET is_completed = ?, last_checked = ? WHERE id = ?`,
			m.Completed, m.CheckedAt.Format(time.RFC3339Nano), m.ItemID,
		)
		if err != nil {
			return fmt.Errorf("update item %d: %w", m.ItemID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update item %d: %w", m.ItemID, ErrItemNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mutations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateItem(ctx context.Context, u ItemUpdate) (Item, error) {
	it, err := s.Item(ctx, u.ID)
	if err != nil {
		return Item{}, err
	}

	now := s.now().UTC()
	it.Completed = u.Completed
	it.LastChecked = &now
	if u.Notes != nil {
		it.Notes = *u.Notes
	}
	if u.CheckedBy != nil {
		it.CheckedBy = *u.CheckedBy
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE checklist_items
		SET is_completed = ?, notes = ?, checked_by = ?, last_checked = ?
		WHERE id = ?`,
		it.Completed, it.Notes, it.CheckedBy, now.Format(time.RFC3339Nano), it.ID,
	)
	if err != nil {
		return Item{}, fmt.Errorf("update item %d: %w", it.ID, err)
	}
	return it, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
