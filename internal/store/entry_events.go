package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"
)

const (
	EventCheckedIn     = "entry.checked_in"
	EventStatusChanged = "entry.status_changed"
)

// EntryEvent is one audit record in an entry's append-only history. Events
// form a per-entry hash chain so tampering with a past transition is
// detectable.
type EntryEvent struct {
	EntryID   string          `json:"entry_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type EventPayload struct {
	EntryID      string        `json:"entry_id"`
	PersonID     string        `json:"person_id,omitempty"`
	ServiceType  string        `json:"service_type,omitempty"`
	Status       models.Status `json:"status,omitempty"`
	ActorRole    models.Role   `json:"actor_role,omitempty"`
	CheckInTime  *time.Time    `json:"check_in_time,omitempty"`
	AttendedAt   *time.Time    `json:"attended_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ScheduledFor *time.Time    `json:"scheduled_for,omitempty"`
}

func ComputeEntryEventHash(prevHash, entryID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entryID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyEntryEvents walks an entry's event chain in order and reports the
// first link whose hash does not match, or -1 when the chain is intact.
func VerifyEntryEvents(events []EntryEvent) int {
	prev := ""
	for i, event := range events {
		expected := ComputeEntryEventHash(prev, event.EntryID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != expected || event.PrevHash != prev {
			return i
		}
		prev = event.Hash
	}
	return -1
}

// RehydrateEntry folds an entry's event history back into its latest shape.
// Used by the audit view; the row in queue_entries stays authoritative.
func RehydrateEntry(events []EntryEvent) (models.QueueEntry, error) {
	var entry models.QueueEntry
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload EventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.QueueEntry{}, err
		}
		if payload.EntryID != "" {
			entry.EntryID = payload.EntryID
		}
		if payload.PersonID != "" {
			entry.PersonID = payload.PersonID
		}
		if payload.ServiceType != "" {
			entry.ServiceType = payload.ServiceType
		}
		if payload.Status != "" {
			entry.Status = payload.Status
		}
		if payload.CheckInTime != nil {
			entry.CheckInTime = *payload.CheckInTime
		}
		if payload.AttendedAt != nil {
			entry.AttendedAt = payload.AttendedAt
		}
		if payload.CompletedAt != nil {
			entry.CompletedAt = payload.CompletedAt
		}
		entry.ScheduledFor = payload.ScheduledFor
	}
	return entry, nil
}
