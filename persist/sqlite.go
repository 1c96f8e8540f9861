package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/AnatoleLucet/dispatch"
)

// ErrStateType is returned when Set receives a state of the wrong type.
var ErrStateType = errors.New("persist: unexpected state type")

// SQLite saves a unit's state as JSON in a SQLite table, one row per key.
//
// It expects an *sql.DB using the "sqlite" driver from modernc.org/sqlite,
// which this package registers.
type SQLite[S any] struct {
	db  *sql.DB
	key string
}

var _ dispatch.Persistence = (*SQLite[struct{}])(nil)

// OpenSQLite opens the database at path. ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLite initializes the schema in db and returns a store for key.
func NewSQLite[S any](db *sql.DB, key string) (*SQLite[S], error) {
	s := &SQLite[S]{db: db, key: key}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite[S]) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS unit_state (
			key TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLite[S]) Key() string {
	return s.key
}

func (s *SQLite[S]) Get() (any, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT state FROM unit_state WHERE key = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var state S
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("decode state %s: %w", s.key, err)
	}
	return state, true, nil
}

func (s *SQLite[S]) Set(state any) error {
	typed, ok := state.(S)
	if !ok {
		return fmt.Errorf("%w: %T", ErrStateType, state)
	}

	data, err := sonic.Marshal(typed)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", s.key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO unit_state (key, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		s.key,
		data,
		time.Now().UnixNano(),
	)
	return err
}

func (s *SQLite[S]) Purge() error {
	_, err := s.db.Exec(`DELETE FROM unit_state WHERE key = ?`, s.key)
	return err
}
