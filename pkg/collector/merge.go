package collector

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jellydator/ttlcache/v3"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
	"github.com/ipnet-mesh/meshcore-hub/pkg/store"
)

// DefaultMergeWindow bounds how far apart two sightings of the same
// transmission may arrive and still collapse into one message.
const DefaultMergeWindow = time.Hour

const mergeLockStripes = 64

// minSignatureLen is the shortest signature considered collision-safe
// enough to correlate sightings across gateways.
const minSignatureLen = 8

// MergeEngine decides whether a channel message sighting is a new logical
// message or a repeat of one already stored. Recent merge keys are cached;
// the store is the fallback for sightings that arrive after a restart or
// land on another process first.
type MergeEngine struct {
	messages store.MessageStore
	window   time.Duration
	clock    clock.Clock

	recent *ttlcache.Cache[string, int64]
	locks  [mergeLockStripes]sync.Mutex
}

// NewMergeEngine creates a merge engine over the message store. A zero
// window means DefaultMergeWindow.
func NewMergeEngine(messages store.MessageStore, window time.Duration, clk clock.Clock) *MergeEngine {
	if window <= 0 {
		window = DefaultMergeWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	// Touch-on-hit would turn the window into a sliding one, diverging
	// from the fixed window the store fallback queries with.
	cache := ttlcache.New[string, int64](
		ttlcache.WithTTL[string, int64](window),
		ttlcache.WithDisableTouchOnHit[string, int64](),
	)
	go cache.Start()
	return &MergeEngine{
		messages: messages,
		window:   window,
		clock:    clk,
		recent:   cache,
	}
}

// Eligible reports whether a message can participate in cross-gateway
// merging. Contact messages and unsigned or weakly-signed channel messages
// always stand alone.
func Eligible(msg *models.Message) bool {
	if msg.MessageClass != models.MessageClassChannel {
		return false
	}
	if msg.TxtType == nil || *msg.TxtType != models.TxtTypeSigned {
		return false
	}
	return msg.Signature != nil && isHexSignature(*msg.Signature)
}

func isHexSignature(s string) bool {
	if len(s) < minSignatureLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Key returns the merge key for an eligible message.
func Key(msg *models.Message) string {
	return strings.ToLower(*msg.Signature)
}

// Lock returns the stripe lock guarding a merge key. Callers hold it across
// the whole resolve-and-commit sequence so two sightings of the same
// transmission serialize in-process.
func (m *MergeEngine) Lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.locks[h.Sum32()%mergeLockStripes]
}

// Resolve finds the stored message a sighting should merge into, or nil if
// this is the first sighting inside the window.
func (m *MergeEngine) Resolve(key string) (*models.Message, error) {
	if item := m.recent.Get(key); item != nil {
		return m.messages.Get(item.Value())
	}
	since := m.clock.Now().UTC().Add(-m.window)
	existing, err := m.messages.GetBySignature(key, since)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	m.recent.Set(key, existing.ID, ttlcache.DefaultTTL)
	return existing, nil
}

// Record remembers a newly inserted message so later sightings inside the
// window skip the store lookup.
func (m *MergeEngine) Record(key string, messageID int64) {
	m.recent.Set(key, messageID, ttlcache.DefaultTTL)
}

// Backfill compares an incoming sighting against the stored message and
// returns the fields the first sighting was missing, or nil when there is
// nothing to add. A specific channel index replaces the firmware catch-all
// default, never the other way round.
func Backfill(existing *models.Message, incoming *models.Message) *store.MessageBackfill {
	b := &store.MessageBackfill{MessageID: existing.ID}
	filled := false

	if existing.ChannelName == nil && incoming.ChannelName != nil {
		b.ChannelName = incoming.ChannelName
		filled = true
	}
	if incoming.ChannelIdx != nil && *incoming.ChannelIdx != models.ChannelIdxDefault {
		if existing.ChannelIdx == nil || *existing.ChannelIdx == models.ChannelIdxDefault {
			b.ChannelIdx = incoming.ChannelIdx
			filled = true
		}
	}
	if !filled {
		return nil
	}
	return b
}

// Stop stops the cache expiry loop.
func (m *MergeEngine) Stop() {
	m.recent.Stop()
}
