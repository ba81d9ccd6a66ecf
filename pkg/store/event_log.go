package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// EventLogStore provides read access to the raw event audit log.
type EventLogStore interface {
	GetRecent(limit int) ([]*models.EventLogEntry, error)
	Count() (int64, error)
}

type postgresEventLogStore struct {
	db *sqlx.DB
}

// NewEventLogStore creates an event log store.
func NewEventLogStore(dbconn *sqlx.DB) EventLogStore {
	return &postgresEventLogStore{db: dbconn}
}

func (s *postgresEventLogStore) GetRecent(limit int) ([]*models.EventLogEntry, error) {
	query := `SELECT * FROM event_log ORDER BY received_at DESC LIMIT $1;`
	entries := []*models.EventLogEntry{}
	err := s.db.Select(&entries, query, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *postgresEventLogStore) Count() (int64, error) {
	var count int64
	err := s.db.Get(&count, `SELECT COUNT(*) FROM event_log;`)
	return count, err
}

var insertEventLogStmt = `
INSERT INTO event_log (public_key, event_type, payload, note, received_at)
VALUES (:public_key, :event_type, :payload, :note, :received_at)
;`

func insertEventLog(e sqlx.Ext, entry *models.EventLogEntry) error {
	_, err := sqlx.NamedExec(e, insertEventLogStmt, entry)
	return err
}

func deleteEventLogBefore(e sqlx.Ext, cutoff time.Time) (int64, error) {
	res, err := e.Exec(`DELETE FROM event_log WHERE received_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
