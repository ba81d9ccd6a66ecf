package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// TraceStore provides read access to trace results.
type TraceStore interface {
	GetByInitiatorTag(tag int64) ([]*models.TracePath, error)
	GetRecent(limit int) ([]*models.TracePath, error)
}

type postgresTraceStore struct {
	db *sqlx.DB
}

// NewTraceStore creates a trace store.
func NewTraceStore(dbconn *sqlx.DB) TraceStore {
	return &postgresTraceStore{db: dbconn}
}

func (s *postgresTraceStore) GetByInitiatorTag(tag int64) ([]*models.TracePath, error) {
	query := `SELECT * FROM trace_paths WHERE initiator_tag = $1 ORDER BY received_at DESC;`
	traces := []*models.TracePath{}
	err := s.db.Select(&traces, query, tag)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return traces, nil
}

func (s *postgresTraceStore) GetRecent(limit int) ([]*models.TracePath, error) {
	query := `SELECT * FROM trace_paths ORDER BY received_at DESC LIMIT $1;`
	traces := []*models.TracePath{}
	err := s.db.Select(&traces, query, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return traces, nil
}

var insertTraceStmt = `
INSERT INTO trace_paths (receiver_public_key, initiator_tag, path_len, flags, auth,
	path_hashes, snr_values, hop_count, received_at, event_hash)
VALUES (:receiver_public_key, :initiator_tag, :path_len, :flags, :auth,
	:path_hashes, :snr_values, :hop_count, :received_at, :event_hash)
ON CONFLICT (event_hash) DO NOTHING
;`

func insertTrace(e sqlx.Ext, trace *models.TracePath) error {
	_, err := sqlx.NamedExec(e, insertTraceStmt, trace)
	return err
}

func deleteTracesBefore(e sqlx.Ext, cutoff time.Time) (int64, error) {
	res, err := e.Exec(`DELETE FROM trace_paths WHERE received_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
