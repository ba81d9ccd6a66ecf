package collector

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func channelMsg(signature string, txtType int) *models.Message {
	return &models.Message{
		MessageClass: models.MessageClassChannel,
		ChannelIdx:   intPtr(4),
		Text:         "hello",
		TxtType:      intPtr(txtType),
		Signature:    strPtr(signature),
		ReceivedAt:   time.Now().UTC(),
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		msg  *models.Message
		want bool
	}{
		{"signed channel message", channelMsg("A1B2C3D4E5F6", 2), true},
		{"contact message", &models.Message{
			MessageClass: models.MessageClassContact,
			TxtType:      intPtr(2),
			Signature:    strPtr("A1B2C3D4E5F6"),
		}, false},
		{"unsigned txt type", channelMsg("A1B2C3D4E5F6", 0), false},
		{"no signature", &models.Message{
			MessageClass: models.MessageClassChannel,
			TxtType:      intPtr(2),
		}, false},
		{"signature too short", channelMsg("A1B2C3", 2), false},
		{"signature not hex", channelMsg("nothexsig!", 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eligible(tt.msg); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyFoldsCase(t *testing.T) {
	a := channelMsg("A1B2C3D4E5F6", 2)
	b := channelMsg("a1b2c3d4e5f6", 2)
	if Key(a) != Key(b) {
		t.Errorf("Key() should be case-insensitive: %q vs %q", Key(a), Key(b))
	}
}

type fakeMessageStore struct {
	bySignature *models.Message
	byID        map[int64]*models.Message
	lookups     int
}

func (f *fakeMessageStore) Get(id int64) (*models.Message, error) {
	return f.byID[id], nil
}

func (f *fakeMessageStore) GetBySignature(signature string, since time.Time) (*models.Message, error) {
	f.lookups++
	return f.bySignature, nil
}

func (f *fakeMessageStore) GetReceivers(messageID int64) ([]*models.MessageReceiver, error) {
	return nil, nil
}

func TestResolveCachesStoreHit(t *testing.T) {
	existing := channelMsg("a1b2c3d4e5f6", 2)
	existing.ID = 42
	fake := &fakeMessageStore{
		bySignature: existing,
		byID:        map[int64]*models.Message{42: existing},
	}

	engine := NewMergeEngine(fake, time.Hour, clock.NewMock())
	defer engine.Stop()

	got, err := engine.Resolve("a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got == nil || got.ID != 42 {
		t.Fatalf("Resolve() = %v, want message 42", got)
	}

	// The second resolve should come from the cache.
	if _, err := engine.Resolve("a1b2c3d4e5f6"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if fake.lookups != 1 {
		t.Errorf("store lookups = %d, want 1", fake.lookups)
	}
}

func TestResolveMissRecordThenHit(t *testing.T) {
	insertedID := int64(7)
	msg := channelMsg("a1b2c3d4e5f6", 2)
	msg.ID = insertedID
	fake := &fakeMessageStore{byID: map[int64]*models.Message{insertedID: msg}}

	engine := NewMergeEngine(fake, time.Hour, clock.NewMock())
	defer engine.Stop()

	got, err := engine.Resolve("a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Resolve() = %v, want nil on first sighting", got)
	}

	engine.Record("a1b2c3d4e5f6", insertedID)
	got, err = engine.Resolve("a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got == nil || got.ID != insertedID {
		t.Fatalf("Resolve() after Record = %v, want message %d", got, insertedID)
	}
}

func TestMergeWindowIsFixedNotSliding(t *testing.T) {
	msg := channelMsg("a1b2c3d4e5f6", 2)
	msg.ID = 9
	fake := &fakeMessageStore{byID: map[int64]*models.Message{9: msg}}

	engine := NewMergeEngine(fake, 300*time.Millisecond, clock.New())
	defer engine.Stop()

	engine.Record("a1b2c3d4e5f6", 9)

	time.Sleep(200 * time.Millisecond)
	got, err := engine.Resolve("a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got == nil || got.ID != 9 {
		t.Fatalf("Resolve() inside window = %v, want message 9", got)
	}

	// A hit must not extend the window: 400ms after Record the key is
	// past the 300ms window even though the last hit was 200ms ago.
	time.Sleep(200 * time.Millisecond)
	got, err = engine.Resolve("a1b2c3d4e5f6")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Resolve() past window = %v, want nil", got)
	}
}

func TestBackfill(t *testing.T) {
	tests := []struct {
		name     string
		existing *models.Message
		incoming *models.Message
		wantNil  bool
		wantName *string
		wantIdx  *int
	}{
		{
			name:     "nothing to add",
			existing: &models.Message{ID: 1, ChannelName: strPtr("general"), ChannelIdx: intPtr(4)},
			incoming: &models.Message{ChannelName: strPtr("other"), ChannelIdx: intPtr(4)},
			wantNil:  true,
		},
		{
			name:     "fills missing channel name",
			existing: &models.Message{ID: 1, ChannelIdx: intPtr(4)},
			incoming: &models.Message{ChannelName: strPtr("general"), ChannelIdx: intPtr(4)},
			wantName: strPtr("general"),
		},
		{
			name:     "specific index replaces catch-all default",
			existing: &models.Message{ID: 1, ChannelIdx: intPtr(models.ChannelIdxDefault)},
			incoming: &models.Message{ChannelIdx: intPtr(4)},
			wantIdx:  intPtr(4),
		},
		{
			name:     "default never replaces specific index",
			existing: &models.Message{ID: 1, ChannelIdx: intPtr(4)},
			incoming: &models.Message{ChannelIdx: intPtr(models.ChannelIdxDefault)},
			wantNil:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Backfill(tt.existing, tt.incoming)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Backfill() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Backfill() = nil, want fields")
			}
			if tt.wantName != nil && (got.ChannelName == nil || *got.ChannelName != *tt.wantName) {
				t.Errorf("ChannelName = %v, want %q", got.ChannelName, *tt.wantName)
			}
			if tt.wantIdx != nil && (got.ChannelIdx == nil || *got.ChannelIdx != *tt.wantIdx) {
				t.Errorf("ChannelIdx = %v, want %d", got.ChannelIdx, *tt.wantIdx)
			}
		})
	}
}
