package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

var _ Sink = (*SQLite)(nil)

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		ts INTEGER NOT NULL,
		status TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(item Item) error {
	_, err := s.db.Exec(`INSERT INTO history (query, ts, status) VALUES (?, ?, ?)`,
		item.Query, item.Timestamp.UnixNano(), string(item.Status))
	return err
}

func (s *SQLite) Load() ([]Item, error) {
	rows, err := s.db.Query(`SELECT query, ts, status FROM history ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var ts int64
		var status string
		if err := rows.Scan(&item.Query, &ts, &status); err != nil {
			return nil, err
		}
		item.Timestamp = time.Unix(0, ts)
		item.Status = Status(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
