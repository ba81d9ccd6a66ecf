package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// NodeTagStore reads operator-managed node tags. The tag-management surface
// owns writes; the collector only reads tags for enrichment.
type NodeTagStore interface {
	// GetTag returns the tag value for a node, or "" when unset.
	GetTag(nodePublicKey, tagKey string) (string, error)
	// FriendlyNameByPrefix resolves the friendly_name tag of the node whose
	// public key starts with the given sender prefix.
	FriendlyNameByPrefix(pubkeyPrefix string) (string, error)
}

type postgresNodeTagStore struct {
	db *sqlx.DB
}

// NewNodeTagStore creates a node tag store.
func NewNodeTagStore(dbconn *sqlx.DB) NodeTagStore {
	return &postgresNodeTagStore{db: dbconn}
}

func (s *postgresNodeTagStore) GetTag(nodePublicKey, tagKey string) (string, error) {
	query := `SELECT tag_value FROM node_tags WHERE node_public_key = $1 AND tag_key = $2;`
	var value string
	err := s.db.Get(&value, query, nodePublicKey, tagKey)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *postgresNodeTagStore) FriendlyNameByPrefix(pubkeyPrefix string) (string, error) {
	query := `
	SELECT t.tag_value FROM node_tags t
	JOIN nodes n ON n.public_key = t.node_public_key
	WHERE n.public_key LIKE $1 || '%' AND t.tag_key = 'friendly_name'
	LIMIT 1;`
	var value string
	err := s.db.Get(&value, query, pubkeyPrefix)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
