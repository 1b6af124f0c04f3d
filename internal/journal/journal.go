// Package journal keeps a per-sheet event log in an SQLite file next to the
// sheet data. Every state transition and bulk step lands here, so "what
// happened to team X and when" has an answer after the fact.
package journal

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const FileName = "journal.db"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	team_key TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_team ON events(team_key);
`

// Event is one journal row. TeamKey is empty for sheet-wide events.
type Event struct {
	ID        int64  `db:"id"`
	Timestamp int64  `db:"timestamp"`
	EventType string `db:"event_type"`
	TeamKey   string `db:"team_key"`
	Detail    string `db:"detail"`
}

func (e Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

type Journal struct {
	db *sqlx.DB
}

// Open connects to the journal database, creating file and schema on first
// use.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one event with the current time.
func (j *Journal) Record(eventType, teamKey, detail string) error {
	query := `
		INSERT INTO events (timestamp, event_type, team_key, detail)
		VALUES (?, ?, ?, ?)
	`
	if _, err := j.db.Exec(query, time.Now().Unix(), eventType, teamKey, detail); err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}
	return nil
}

// List returns all events in insertion order, optionally filtered by team.
func (j *Journal) List(teamKey string) ([]Event, error) {
	var events []Event
	var err error
	if teamKey == "" {
		err = j.db.Select(&events, "SELECT * FROM events ORDER BY id")
	} else {
		err = j.db.Select(&events, "SELECT * FROM events WHERE team_key = ? ORDER BY id", teamKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list journal events: %w", err)
	}
	return events, nil
}

// LastByTeam returns the newest event per team key, for the status view.
func (j *Journal) LastByTeam() (map[string]Event, error) {
	query := `
		SELECT e.* FROM events e
		JOIN (
			SELECT team_key, MAX(id) AS max_id
			FROM events
			WHERE team_key != ''
			GROUP BY team_key
		) last ON last.max_id = e.id
	`
	var events []Event
	if err := j.db.Select(&events, query); err != nil {
		return nil, fmt.Errorf("failed to fetch last events: %w", err)
	}
	out := make(map[string]Event, len(events))
	for _, e := range events {
		out[e.TeamKey] = e
	}
	return out, nil
}
