package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// AdvertisementStore provides read access to the advertisement history.
type AdvertisementStore interface {
	GetRecent(publicKey string, limit int) ([]*models.Advertisement, error)
	Count() (int64, error)
}

type postgresAdvertisementStore struct {
	db *sqlx.DB
}

// NewAdvertisementStore creates an advertisement store.
func NewAdvertisementStore(dbconn *sqlx.DB) AdvertisementStore {
	return &postgresAdvertisementStore{db: dbconn}
}

func (s *postgresAdvertisementStore) GetRecent(publicKey string, limit int) ([]*models.Advertisement, error) {
	query := `SELECT * FROM advertisements WHERE public_key = $1 ORDER BY received_at DESC LIMIT $2;`
	adverts := []*models.Advertisement{}
	err := s.db.Select(&adverts, query, publicKey, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return adverts, nil
}

func (s *postgresAdvertisementStore) Count() (int64, error) {
	var count int64
	err := s.db.Get(&count, `SELECT COUNT(*) FROM advertisements;`)
	return count, err
}

var insertAdvertisementStmt = `
INSERT INTO advertisements (public_key, name, adv_type, flags, received_by, received_at, event_hash)
VALUES (:public_key, :name, :adv_type, :flags, :received_by, :received_at, :event_hash)
ON CONFLICT (event_hash) DO NOTHING
;`

func insertAdvertisement(e sqlx.Ext, adv *models.Advertisement) error {
	_, err := sqlx.NamedExec(e, insertAdvertisementStmt, adv)
	return err
}

func deleteAdvertisementsBefore(e sqlx.Ext, cutoff time.Time) (int64, error) {
	res, err := e.Exec(`DELETE FROM advertisements WHERE received_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
