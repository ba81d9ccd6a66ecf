package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

var selectMessages = `SELECT * FROM messages`

// MessageStore provides read access to messages and their receiver sets.
type MessageStore interface {
	Get(id int64) (*models.Message, error)
	// GetBySignature looks up a merge candidate: a channel message with the
	// given (case-folded) signature received inside the ingestion window.
	GetBySignature(signature string, since time.Time) (*models.Message, error)
	GetReceivers(messageID int64) ([]*models.MessageReceiver, error)
}

type postgresMessageStore struct {
	db *sqlx.DB
}

// NewMessageStore creates a message store.
func NewMessageStore(dbconn *sqlx.DB) MessageStore {
	return &postgresMessageStore{db: dbconn}
}

func (s *postgresMessageStore) Get(id int64) (*models.Message, error) {
	query := selectMessages + " WHERE id = $1;"
	var msg models.Message
	err := s.db.Get(&msg, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *postgresMessageStore) GetBySignature(signature string, since time.Time) (*models.Message, error) {
	query := selectMessages + `
	 WHERE message_class = $1 AND LOWER(signature) = $2 AND received_at >= $3
	 ORDER BY received_at DESC LIMIT 1;`
	var msg models.Message
	err := s.db.Get(&msg, query, models.MessageClassChannel, strings.ToLower(signature), since)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *postgresMessageStore) GetReceivers(messageID int64) ([]*models.MessageReceiver, error) {
	query := `SELECT * FROM message_receivers WHERE message_id = $1 ORDER BY received_at;`
	receivers := []*models.MessageReceiver{}
	err := s.db.Select(&receivers, query, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return receivers, nil
}

// insertMessageStmt relies on the event_hash unique constraint as the
// cross-process duplicate guard for merge-eligible messages. Non-eligible
// messages carry a NULL hash (each NULL is distinct) and always insert.
var insertMessageStmt = `
INSERT INTO messages (message_class, pubkey_prefix, channel_idx, channel_name, text,
	txt_type, signature, snr, sender_timestamp, path_len, received_at, event_hash)
VALUES (:message_class, :pubkey_prefix, :channel_idx, :channel_name, :text,
	:txt_type, :signature, :snr, :sender_timestamp, :path_len, :received_at, :event_hash)
ON CONFLICT (event_hash) DO NOTHING
RETURNING id
;`

func insertMessage(e sqlx.Ext, msg *models.Message) error {
	rows, err := sqlx.NamedQuery(e, insertMessageStmt, msg)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		return ErrConflict
	}
	return rows.Scan(&msg.ID)
}

var insertReceiverStmt = `
INSERT INTO message_receivers (message_id, receiver_public_key, receiver_name, snr, received_at)
VALUES (:message_id, :receiver_public_key, :receiver_name, :snr, :received_at)
ON CONFLICT (message_id, receiver_public_key) DO NOTHING
;`

func insertReceiver(e sqlx.Ext, r *models.MessageReceiver) error {
	_, err := sqlx.NamedExec(e, insertReceiverStmt, r)
	return err
}

// backfillMessage fills in fields the first sighting was missing. Only
// non-nil values are applied.
func backfillMessage(e sqlx.Ext, b *MessageBackfill) error {
	_, err := e.Exec(`
	UPDATE messages SET
		channel_name = COALESCE($2, channel_name),
		channel_idx = COALESCE($3, channel_idx)
	WHERE id = $1;`, b.MessageID, b.ChannelName, b.ChannelIdx)
	return err
}
