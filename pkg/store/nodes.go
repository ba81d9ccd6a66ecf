package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

var selectNodes = `SELECT * FROM nodes`

// NodeStore provides read access to node snapshots. Writes go through
// Stores.Commit so each incoming event lands atomically.
type NodeStore interface {
	Get(publicKey string) (*models.Node, error)
	GetByPrefix(pubkeyPrefix string) (*models.Node, error)
	Count() (int64, error)
}

type postgresNodeStore struct {
	db *sqlx.DB
}

// NewNodeStore creates a node store.
func NewNodeStore(dbconn *sqlx.DB) NodeStore {
	return &postgresNodeStore{db: dbconn}
}

// Get retrieves a node by its full public key.
func (s *postgresNodeStore) Get(publicKey string) (*models.Node, error) {
	query := selectNodes + " WHERE public_key = $1;"
	var node models.Node
	err := s.db.Get(&node, query, publicKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// GetByPrefix retrieves a node whose public key starts with the given sender
// prefix. Prefix collisions are possible in principle; the first match wins.
func (s *postgresNodeStore) GetByPrefix(pubkeyPrefix string) (*models.Node, error) {
	query := selectNodes + " WHERE public_key LIKE $1 || '%' LIMIT 1;"
	var node models.Node
	err := s.db.Get(&node, query, pubkeyPrefix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// Count returns the number of known nodes.
func (s *postgresNodeStore) Count() (int64, error) {
	var n int64
	err := s.db.Get(&n, `SELECT COUNT(*) FROM nodes;`)
	return n, err
}

// upsertNodeStmt applies an advertisement-driven snapshot update with
// last-write-wins on recency: stale sightings never clobber a newer snapshot.
// The WHERE clause makes the compare-and-swap atomic at the storage layer, so
// concurrent upserts from different gateways cannot lose updates.
var upsertNodeStmt = `
INSERT INTO nodes (public_key, name, adv_type, flags, first_seen, last_seen)
VALUES (:public_key, :name, :adv_type, :flags, :first_seen, :last_seen)
ON CONFLICT (public_key)
DO UPDATE SET
	name = COALESCE(EXCLUDED.name, nodes.name),
	adv_type = COALESCE(EXCLUDED.adv_type, nodes.adv_type),
	flags = COALESCE(EXCLUDED.flags, nodes.flags),
	last_seen = EXCLUDED.last_seen
WHERE nodes.last_seen IS NULL OR nodes.last_seen <= EXCLUDED.last_seen
;`

// syncNodeStmt applies a contact-list sync: it may introduce a node or fill
// in a name, but never touches last_seen (contact sync is not a sighting) and
// never overwrites an adv_type learned from a real advertisement.
var syncNodeStmt = `
INSERT INTO nodes (public_key, name, adv_type, first_seen)
VALUES (:public_key, :name, :adv_type, :first_seen)
ON CONFLICT (public_key)
DO UPDATE SET
	name = COALESCE(EXCLUDED.name, nodes.name),
	adv_type = COALESCE(nodes.adv_type, EXCLUDED.adv_type)
;`

func upsertNode(e sqlx.Ext, node *models.Node) error {
	_, err := sqlx.NamedExec(e, upsertNodeStmt, node)
	return err
}

func syncNode(e sqlx.Ext, node *models.Node) error {
	_, err := sqlx.NamedExec(e, syncNodeStmt, node)
	return err
}
