package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"
	"github.com/noe-create/medidhub-cpv-sub000/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `entry_id, request_id, person_id, patient_record_id, kind, service_type,
		account_type, status, check_in_time, attended_at, completed_at, scheduled_for, birth_date, sex`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateEntry(ctx context.Context, input store.CreateEntryInput) (models.QueueEntry, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findEntryByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.QueueEntry{}, false, dbErr(err)
		}
		return existing, false, nil
	}

	checkInTime := input.CheckInTime
	if checkInTime.IsZero() {
		checkInTime = time.Now().UTC()
	}
	kind := input.Kind
	if kind == "" {
		kind = models.KindPrimaryMember
	}

	entryID := uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO queue_entries (
			entry_id, request_id, person_id, patient_record_id, kind, service_type,
			account_type, status, check_in_time, birth_date, sex
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING `+entryColumns+`
	`, entryID, input.RequestID, input.PersonID, input.PatientRecordID, kind, input.ServiceType,
		nullIfEmpty(input.AccountType), models.StatusEsperando, checkInTime, input.BirthDate, nullIfEmpty(input.Sex))

	var entry models.QueueEntry
	if err = scanEntry(row, &entry); err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}

	if err = appendEntryEvent(ctx, tx, store.EventCheckedIn, entry, ""); err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}
	return entry, true, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE entry_id = $1
	`, entryID)
	var entry models.QueueEntry
	if err := scanEntry(row, &entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, false, dbErr(err)
	}
	return entry, true, nil
}

// ListActive returns entries still on the board: pospuesto and terminal
// statuses drop out. Ordered oldest check-in first so every lane renders
// longest wait on top.
func (s *Store) ListActive(ctx context.Context, serviceType string) ([]models.QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE status NOT IN ('pospuesto','cancelado','completado')
	`
	args := []interface{}{}
	if serviceType != "" {
		query += " AND service_type = $1"
		args = append(args, serviceType)
	}
	query += " ORDER BY check_in_time ASC, entry_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var entry models.QueueEntry
		if err := scanEntry(rows, &entry); err != nil {
			return nil, dbErr(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	return entries, nil
}

// ApplyTransition moves an entry to input.ToStatus in one atomic statement.
// The WHERE clause carries the terminal guard (and the origin guard for
// en_consulta), so two racing transitions serialize at the row: one wins,
// the other resolves against the post-write status.
func (s *Store) ApplyTransition(ctx context.Context, input store.TransitionInput) (models.QueueEntry, bool, error) {
	if !store.RoleAllows(input.ActorRole, input.ToStatus) {
		return models.QueueEntry{}, false, store.ErrIllegalTransition
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	if input.ToStatus == models.StatusPospuesto {
		if input.ScheduledFor == nil || !input.ScheduledFor.After(occurredAt) {
			return models.QueueEntry{}, false, fmt.Errorf("%w: scheduled_for must be in the future", store.ErrValidationFailed)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if input.RequestID != "" {
		existing, found, ferr := findTransitionRequest(ctx, tx, input.RequestID)
		if ferr != nil {
			err = ferr
			return models.QueueEntry{}, false, dbErr(err)
		}
		if found {
			if err = tx.Commit(ctx); err != nil {
				return models.QueueEntry{}, false, dbErr(err)
			}
			return existing, false, nil
		}
	}

	query, args := transitionStatement(input, occurredAt)
	row := tx.QueryRow(ctx, query, args...)
	var entry models.QueueEntry
	if err = scanEntry(row, &entry); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, dbErr(err)
		}
		// The atomic update matched nothing. Load the row once to tell
		// vanished, terminal, converged, and bad-origin cases apart.
		current, exists, lerr := loadEntry(ctx, tx, input.EntryID)
		if lerr != nil {
			err = lerr
			return models.QueueEntry{}, false, dbErr(err)
		}
		if !exists {
			err = store.ErrEntryNotFound
			return models.QueueEntry{}, false, err
		}
		if !store.IsTerminal(current.Status) && current.Status == input.ToStatus {
			// Resubmission of an already-applied transition: converge
			// without a second audit write.
			err = tx.Commit(ctx)
			if err != nil {
				return models.QueueEntry{}, false, dbErr(err)
			}
			return current, false, nil
		}
		err = store.ErrIllegalTransition
		return models.QueueEntry{}, false, err
	}

	if err = appendEntryEvent(ctx, tx, store.EventStatusChanged, entry, input.ActorRole); err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}
	if input.RequestID != "" {
		if err = insertTransitionRequest(ctx, tx, input, occurredAt); err != nil {
			return models.QueueEntry{}, false, dbErr(err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, false, dbErr(err)
	}
	return entry, true, nil
}

func (s *Store) ListEntryEvents(ctx context.Context, entryID string) ([]store.EntryEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, seq, type, payload, created_at, prev_hash, hash
		FROM entry_events
		WHERE entry_id = $1
		ORDER BY seq ASC
	`, entryID)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var events []store.EntryEvent
	for rows.Next() {
		var event store.EntryEvent
		if err := rows.Scan(&event.EntryID, &event.Seq, &event.Type, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, dbErr(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	return events, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > now()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, dbErr(err)
	}
	return session, nil
}

// transitionStatement builds the single UPDATE for the requested target.
// Every variant clears scheduled_for unless the target is pospuesto, keeping
// the invariant that the field exists exactly on deferred entries.
func transitionStatement(input store.TransitionInput, occurredAt time.Time) (string, []interface{}) {
	returning := " RETURNING " + entryColumns

	switch input.ToStatus {
	case models.StatusEnConsulta:
		return `
			UPDATE queue_entries
			SET status = $2, attended_at = $3, scheduled_for = NULL
			WHERE entry_id = $1 AND status IN ('esperando','reevaluacion')` + returning,
			[]interface{}{input.EntryID, input.ToStatus, occurredAt}
	case models.StatusPospuesto:
		return `
			UPDATE queue_entries
			SET status = $2, scheduled_for = $3
			WHERE entry_id = $1 AND status NOT IN ('cancelado','completado')` + returning,
			[]interface{}{input.EntryID, input.ToStatus, input.ScheduledFor.UTC()}
	case models.StatusCompletado:
		return `
			UPDATE queue_entries
			SET status = $2, completed_at = $3, scheduled_for = NULL
			WHERE entry_id = $1 AND status NOT IN ('cancelado','completado')` + returning,
			[]interface{}{input.EntryID, input.ToStatus, occurredAt}
	default:
		// status <> $2 keeps a double click from appending a second audit
		// event; the caller converges on the already-applied state instead.
		return `
			UPDATE queue_entries
			SET status = $2, scheduled_for = NULL
			WHERE entry_id = $1 AND status NOT IN ('cancelado','completado') AND status <> $2` + returning,
			[]interface{}{input.EntryID, input.ToStatus}
	}
}

func findEntryByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.QueueEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE request_id = $1
	`, requestID)
	var entry models.QueueEntry
	if err := scanEntry(row, &entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func findTransitionRequest(ctx context.Context, tx pgx.Tx, requestID string) (models.QueueEntry, bool, error) {
	var entryID string
	row := tx.QueryRow(ctx, `
		SELECT entry_id FROM entry_actions WHERE request_id = $1
	`, requestID)
	if err := row.Scan(&entryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	entry, exists, err := loadEntry(ctx, tx, entryID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if !exists {
		return models.QueueEntry{}, false, store.ErrEntryNotFound
	}
	return entry, true, nil
}

func insertTransitionRequest(ctx context.Context, tx pgx.Tx, input store.TransitionInput, occurredAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO entry_actions (request_id, entry_id, to_status, actor_role, occurred_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (request_id) DO NOTHING
	`, input.RequestID, input.EntryID, input.ToStatus, input.ActorRole, occurredAt)
	return err
}

func loadEntry(ctx context.Context, tx pgx.Tx, entryID string) (models.QueueEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE entry_id = $1
	`, entryID)
	var entry models.QueueEntry
	if err := scanEntry(row, &entry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func appendEntryEvent(ctx context.Context, tx pgx.Tx, eventType string, entry models.QueueEntry, actorRole models.Role) error {
	var seq int
	prevHash := ""
	row := tx.QueryRow(ctx, `
		SELECT seq, hash FROM entry_events
		WHERE entry_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, entry.EntryID)
	if err := row.Scan(&seq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	seq++

	checkIn := entry.CheckInTime
	payload, err := json.Marshal(store.EventPayload{
		EntryID:      entry.EntryID,
		PersonID:     entry.PersonID,
		ServiceType:  entry.ServiceType,
		Status:       entry.Status,
		ActorRole:    actorRole,
		CheckInTime:  &checkIn,
		AttendedAt:   entry.AttendedAt,
		CompletedAt:  entry.CompletedAt,
		ScheduledFor: entry.ScheduledFor,
	})
	if err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	hash := store.ComputeEntryEventHash(prevHash, entry.EntryID, eventType, payload, createdAt, seq)
	_, err = tx.Exec(ctx, `
		INSERT INTO entry_events (event_id, entry_id, seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.NewString(), entry.EntryID, seq, eventType, payload, createdAt, prevHash, hash)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner, entry *models.QueueEntry) error {
	var (
		requestID    sql.NullString
		accountType  sql.NullString
		attendedAt   sql.NullTime
		completedAt  sql.NullTime
		scheduledFor sql.NullTime
		birthDate    sql.NullTime
		sex          sql.NullString
	)
	if err := row.Scan(&entry.EntryID, &requestID, &entry.PersonID, &entry.PatientRecordID, &entry.Kind,
		&entry.ServiceType, &accountType, &entry.Status, &entry.CheckInTime,
		&attendedAt, &completedAt, &scheduledFor, &birthDate, &sex); err != nil {
		return err
	}
	if requestID.Valid {
		entry.RequestID = requestID.String
	}
	if accountType.Valid {
		entry.AccountType = accountType.String
	}
	entry.AttendedAt = nullTimePtr(attendedAt)
	entry.CompletedAt = nullTimePtr(completedAt)
	entry.ScheduledFor = nullTimePtr(scheduledFor)
	entry.BirthDate = nullTimePtr(birthDate)
	if sex.Valid {
		entry.Sex = sex.String
	}
	return nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// dbErr folds transport and driver failures into the persistence
// unavailability bucket; domain sentinels pass through untouched.
func dbErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrEntryNotFound),
		errors.Is(err, store.ErrIllegalTransition),
		errors.Is(err, store.ErrValidationFailed),
		errors.Is(err, store.ErrSessionNotFound):
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrPersistenceUnavailable, err)
}
