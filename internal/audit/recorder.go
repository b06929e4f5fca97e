// Package audit writes the append-only action trail. Recording is strictly
// best effort: a failed insert is logged and swallowed so the action that
// triggered it is never rolled back or failed.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"fotoreg/api/internal/ids"
	"fotoreg/api/internal/models"
)

// Store is the persistence surface the recorder needs.
type Store interface {
	Insert(ctx context.Context, entry models.AuditLogEntry) error
}

type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger.With().Str("component", "audit").Logger()}
}

// Event describes one recordable action. OldValues and NewValues are
// marshalled to JSON; nil maps are stored as NULL.
type Event struct {
	UserID    string
	Action    string
	TableName string
	RecordID  string
	OldValues map[string]any
	NewValues map[string]any
	IPAddress string
	UserAgent string
}

// Record persists the event. The write runs against a fresh short deadline
// so a caller with an already-cancelled context still gets its trail entry.
func (r *Recorder) Record(ctx context.Context, event Event) {
	entry := models.AuditLogEntry{
		ID:        ids.New(),
		Action:    event.Action,
		TableName: event.TableName,
		RecordID:  event.RecordID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
	}
	if event.UserID != "" {
		userID := event.UserID
		entry.UserID = &userID
	}
	if event.OldValues != nil {
		if raw, err := json.Marshal(event.OldValues); err == nil {
			entry.OldValues = raw
		}
	}
	if event.NewValues != nil {
		if raw, err := json.Marshal(event.NewValues); err == nil {
			entry.NewValues = raw
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.Insert(writeCtx, entry); err != nil {
		r.logger.Warn().Err(err).Str("action", event.Action).Msg("audit write failed")
	}
}
