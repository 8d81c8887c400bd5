package render

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const transcriptSchema = `
CREATE TABLE IF NOT EXISTS transcript (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	role TEXT NOT NULL,
	body TEXT NOT NULL
);
`

// Store persists finalized bubbles to a local SQLite database so transcripts
// survive across runs. It implements Sink: streamed fragments are buffered in
// memory and written as one row when the stream closes.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	open    bool
	partial strings.Builder
}

// OpenStore opens (creating if needed) the transcript database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping transcript db: %w", err)
	}
	if _, err := db.Exec(transcriptSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(role Role, text string) {
	s.insert(role, text)
}

func (s *Store) StreamOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.partial.Reset()
}

func (s *Store) StreamAppend(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.partial.WriteString(fragment)
}

func (s *Store) StreamClose() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false
	body := s.partial.String()
	s.partial.Reset()
	s.mu.Unlock()

	if body != "" {
		s.insert(RoleAssistant, body)
	}
}

func (s *Store) insert(role Role, body string) {
	// Sink methods cannot return errors; a failed insert loses one row of
	// history but must not disturb the live conversation.
	s.db.Exec(
		`INSERT INTO transcript (created_at, role, body) VALUES (?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), string(role), body,
	)
}

// Recent returns up to limit most recent bubbles, oldest first.
func (s *Store) Recent(limit int) ([]Bubble, error) {
	rows, err := s.db.Query(
		`SELECT role, body FROM transcript ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []Bubble
	for rows.Next() {
		var b Bubble
		if err := rows.Scan((*string)(&b.Role), &b.Text); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
