package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// WebhookStore provides access to webhook subscriptions.
type WebhookStore interface {
	Get(id int64) (*models.WebhookSubscription, error)
	GetEnabled() ([]*models.WebhookSubscription, error)
	Create(sub *models.WebhookSubscription) error
	SetEnabled(id int64, enabled bool) error
	Delete(id int64) error
}

type postgresWebhookStore struct {
	db *sqlx.DB
}

// NewWebhookStore creates a webhook subscription store.
func NewWebhookStore(dbconn *sqlx.DB) WebhookStore {
	return &postgresWebhookStore{db: dbconn}
}

func (s *postgresWebhookStore) Get(id int64) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	err := s.db.Get(&sub, `SELECT * FROM webhook_subscriptions WHERE id = $1;`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *postgresWebhookStore) GetEnabled() ([]*models.WebhookSubscription, error) {
	subs := []*models.WebhookSubscription{}
	err := s.db.Select(&subs, `SELECT * FROM webhook_subscriptions WHERE enabled ORDER BY id;`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *postgresWebhookStore) Create(sub *models.WebhookSubscription) error {
	rows, err := sqlx.NamedQuery(s.db, `
	INSERT INTO webhook_subscriptions (url, event_types, path_filter, enabled)
	VALUES (:url, :event_types, :path_filter, :enabled)
	RETURNING id
	;`, sub)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&sub.ID)
	}
	return rows.Err()
}

func (s *postgresWebhookStore) SetEnabled(id int64, enabled bool) error {
	_, err := s.db.Exec(`UPDATE webhook_subscriptions SET enabled = $2 WHERE id = $1;`, id, enabled)
	return err
}

func (s *postgresWebhookStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM webhook_subscriptions WHERE id = $1;`, id)
	return err
}
