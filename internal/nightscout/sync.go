package nightscout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/glucolog/glucolog/internal/entries"
	"go.uber.org/zap"
)

// backfillWindow bounds the first import when no cursor exists yet.
const backfillWindow = 7 * 24 * time.Hour

// cursorStore persists the last-imported timestamp between runs.
type cursorStore interface {
	SetKV(key string, value []byte) error
	GetKV(key string) ([]byte, error)
}

// Syncer pulls glucose readings from Nightscout into the journal.
type Syncer struct {
	client  *Client
	entries *entries.Store
	cursors cursorStore
	logger  *zap.Logger
}

func NewSyncer(client *Client, entryStore *entries.Store, cursors cursorStore, logger *zap.Logger) *Syncer {
	return &Syncer{
		client:  client,
		entries: entryStore,
		cursors: cursors,
		logger:  logger,
	}
}

func cursorKey(userID string) string {
	return "nightscout:cursor:" + userID
}

func (s *Syncer) lastCursor(userID string) time.Time {
	raw, err := s.cursors.GetKV(cursorKey(userID))
	if err != nil {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// Sync imports readings newer than the stored cursor. Re-running is
// idempotent: records are deduplicated on the upstream entry ID, and the
// cursor only advances past what was persisted.
func (s *Syncer) Sync(ctx context.Context, userID string) (int, error) {
	from := s.lastCursor(userID)
	if from.IsZero() {
		from = time.Now().Add(-backfillWindow)
	}

	remote, err := s.client.Entries(ctx, from, time.Time{}, 0)
	if err != nil {
		return 0, err
	}

	imported := 0
	var newest int64
	for _, r := range remote {
		if r.SGV <= 0 {
			continue
		}
		if r.Date > newest {
			newest = r.Date
		}

		exists, err := s.entries.HasExternalID(userID, r.ID)
		if err != nil {
			return imported, fmt.Errorf("checking for duplicate: %w", err)
		}
		if exists {
			continue
		}

		occurred := r.Time()
		entry := &entries.Entry{
			UserID:     userID,
			Type:       entries.TypeGlucose,
			Value:      float64(r.SGV),
			Source:     "nightscout",
			ExternalID: r.ID,
			OccurredAt: occurred,
		}
		if r.Direction != "" {
			entry.Notes = "direction: " + r.Direction
		}
		if err := s.entries.Create(entry); err != nil {
			return imported, fmt.Errorf("storing entry %s: %w", r.ID, err)
		}
		imported++
	}

	if newest > 0 {
		if err := s.cursors.SetKV(cursorKey(userID), []byte(strconv.FormatInt(newest, 10))); err != nil {
			s.logger.Warn("failed to persist sync cursor", zap.Error(err))
		}
	}

	s.logger.Info("nightscout sync complete",
		zap.String("user_id", userID),
		zap.Int("fetched", len(remote)),
		zap.Int("imported", imported))
	return imported, nil
}
