package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

// ErrConflict is returned by Commit when a merge-eligible message's event
// hash already exists. Another process persisted the same transmission
// first; the caller should re-read and merge instead.
var ErrConflict = errors.New("store: duplicate event hash")

// MessageBackfill fills fields the first sighting of a merged message was
// missing. Nil fields are left untouched.
type MessageBackfill struct {
	MessageID   int64
	ChannelName *string
	ChannelIdx  *int
}

// WriteSet is everything one incoming event writes. Commit applies the
// whole set in a single transaction so an event is either fully persisted
// or not at all.
type WriteSet struct {
	NodeUpserts   []*models.Node // sighting-driven snapshot updates
	NodeSyncs     []*models.Node // contact list sync entries
	Message       *models.Message
	Receiver      *models.MessageReceiver
	Backfill      *MessageBackfill
	Advertisement *models.Advertisement
	Trace         *models.TracePath
	Telemetry     *models.Telemetry
	LogEntry      *models.EventLogEntry
}

// Stores bundles every store over one database handle.
type Stores struct {
	db *sqlx.DB

	Nodes          NodeStore
	NodeTags       NodeTagStore
	Messages       MessageStore
	Advertisements AdvertisementStore
	Traces         TraceStore
	Telemetry      TelemetryStore
	EventLog       EventLogStore
	Webhooks       WebhookStore
}

// NewStores creates the store bundle.
func NewStores(dbconn *sqlx.DB) *Stores {
	return &Stores{
		db:             dbconn,
		Nodes:          NewNodeStore(dbconn),
		NodeTags:       NewNodeTagStore(dbconn),
		Messages:       NewMessageStore(dbconn),
		Advertisements: NewAdvertisementStore(dbconn),
		Traces:         NewTraceStore(dbconn),
		Telemetry:      NewTelemetryStore(dbconn),
		EventLog:       NewEventLogStore(dbconn),
		Webhooks:       NewWebhookStore(dbconn),
	}
}

// Commit applies a WriteSet atomically. On ErrConflict the transaction is
// rolled back and nothing from the set is persisted; the message already
// exists under another id.
func (s *Stores) Commit(ctx context.Context, ws *WriteSet) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyWriteSet(tx, ws); err != nil {
		return err
	}
	return tx.Commit()
}

func applyWriteSet(tx *sqlx.Tx, ws *WriteSet) error {
	for _, n := range ws.NodeUpserts {
		if err := upsertNode(tx, n); err != nil {
			return err
		}
	}
	for _, n := range ws.NodeSyncs {
		if err := syncNode(tx, n); err != nil {
			return err
		}
	}
	if ws.Message != nil {
		if err := insertMessage(tx, ws.Message); err != nil {
			return err
		}
		if ws.Receiver != nil {
			ws.Receiver.MessageID = ws.Message.ID
		}
	}
	if ws.Receiver != nil {
		if err := insertReceiver(tx, ws.Receiver); err != nil {
			return err
		}
	}
	if ws.Backfill != nil {
		if err := backfillMessage(tx, ws.Backfill); err != nil {
			return err
		}
	}
	if ws.Advertisement != nil {
		if err := insertAdvertisement(tx, ws.Advertisement); err != nil {
			return err
		}
	}
	if ws.Trace != nil {
		if err := insertTrace(tx, ws.Trace); err != nil {
			return err
		}
	}
	if ws.Telemetry != nil {
		if err := insertTelemetry(tx, ws.Telemetry); err != nil {
			return err
		}
	}
	if ws.LogEntry != nil {
		if err := insertEventLog(tx, ws.LogEntry); err != nil {
			return err
		}
	}
	return nil
}

// PruneResult counts rows removed by one retention sweep.
type PruneResult struct {
	Messages       int64
	Advertisements int64
	Traces         int64
	Telemetry      int64
	EventLog       int64
}

// Prune removes history older than the cutoff from every retained table.
// Receiver rows go with their messages via the foreign key cascade.
func (s *Stores) Prune(ctx context.Context, cutoff time.Time) (PruneResult, error) {
	var result PruneResult

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE received_at < $1;`, cutoff)
	if err != nil {
		return result, err
	}
	result.Messages, _ = res.RowsAffected()

	if result.Advertisements, err = deleteAdvertisementsBefore(s.db, cutoff); err != nil {
		return result, err
	}
	if result.Traces, err = deleteTracesBefore(s.db, cutoff); err != nil {
		return result, err
	}
	if result.Telemetry, err = deleteTelemetryBefore(s.db, cutoff); err != nil {
		return result, err
	}
	if result.EventLog, err = deleteEventLogBefore(s.db, cutoff); err != nil {
		return result, err
	}
	return result, nil
}
