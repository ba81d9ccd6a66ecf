package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// TelemetryStore provides read access to telemetry reports.
type TelemetryStore interface {
	GetLatest(nodePublicKey string) (*models.Telemetry, error)
	GetRecent(nodePublicKey string, limit int) ([]*models.Telemetry, error)
}

type postgresTelemetryStore struct {
	db *sqlx.DB
}

// NewTelemetryStore creates a telemetry store.
func NewTelemetryStore(dbconn *sqlx.DB) TelemetryStore {
	return &postgresTelemetryStore{db: dbconn}
}

func (s *postgresTelemetryStore) GetLatest(nodePublicKey string) (*models.Telemetry, error) {
	query := `SELECT * FROM telemetry WHERE node_public_key = $1 ORDER BY received_at DESC LIMIT 1;`
	var t models.Telemetry
	err := s.db.Get(&t, query, nodePublicKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *postgresTelemetryStore) GetRecent(nodePublicKey string, limit int) ([]*models.Telemetry, error) {
	query := `SELECT * FROM telemetry WHERE node_public_key = $1 ORDER BY received_at DESC LIMIT $2;`
	reports := []*models.Telemetry{}
	err := s.db.Select(&reports, query, nodePublicKey, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reports, nil
}

var insertTelemetryStmt = `
INSERT INTO telemetry (node_public_key, lpp_data, parsed_data, received_at, event_hash)
VALUES (:node_public_key, :lpp_data, :parsed_data, :received_at, :event_hash)
ON CONFLICT (event_hash) DO NOTHING
;`

func insertTelemetry(e sqlx.Ext, t *models.Telemetry) error {
	_, err := sqlx.NamedExec(e, insertTelemetryStmt, t)
	return err
}

func deleteTelemetryBefore(e sqlx.Ext, cutoff time.Time) (int64, error) {
	res, err := e.Exec(`DELETE FROM telemetry WHERE received_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
