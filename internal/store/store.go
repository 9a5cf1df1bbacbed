package store

import (
	"context"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"
)

type CreateEntryInput struct {
	RequestID       string
	PersonID        string
	PatientRecordID string
	Kind            string
	ServiceType     string
	AccountType     string
	BirthDate       *time.Time
	Sex             string
	CheckInTime     time.Time
}

type TransitionInput struct {
	RequestID    string
	EntryID      string
	ActorRole    models.Role
	ToStatus     models.Status
	ScheduledFor *time.Time
	OccurredAt   time.Time
}

// EntryStore is the persistence contract for the waiting-room queue. The
// boolean result on mutations reports whether the call actually changed
// state; a converged resubmission returns the entry with false.
type EntryStore interface {
	CreateEntry(ctx context.Context, input CreateEntryInput) (models.QueueEntry, bool, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error)
	ListActive(ctx context.Context, serviceType string) ([]models.QueueEntry, error)
	ApplyTransition(ctx context.Context, input TransitionInput) (models.QueueEntry, bool, error)
	ListEntryEvents(ctx context.Context, entryID string) ([]EntryEvent, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	UserID    string
	Role      models.Role
	ExpiresAt time.Time
}
