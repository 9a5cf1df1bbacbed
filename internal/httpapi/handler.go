package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"
	"github.com/noe-create/medidhub-cpv-sub000/internal/refresher"
	"github.com/noe-create/medidhub-cpv-sub000/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// actionTargets maps the action path segment to the status it requests. The
// actor's role comes from the session, never from the request body.
var actionTargets = map[string]models.Status{
	"attend":    models.StatusEnConsulta,
	"treatment": models.StatusEnTratamiento,
	"absent":    models.StatusAusente,
	"postpone":  models.StatusPospuesto,
	"recheck":   models.StatusReevaluacion,
	"requeue":   models.StatusEsperando,
	"cancel":    models.StatusCancelado,
	"complete":  models.StatusCompletado,
}

type Handler struct {
	store          store.EntryStore
	board          *refresher.Refresher
	logger         zerolog.Logger
	activePollHint int
}

type Options struct {
	Board          *refresher.Refresher
	Logger         zerolog.Logger
	ActivePollHint time.Duration
}

func NewHandler(entryStore store.EntryStore, options Options) *Handler {
	hint := int(options.ActivePollHint / time.Second)
	if hint <= 0 {
		hint = 10
	}
	return &Handler{
		store:          entryStore,
		board:          options.Board,
		logger:         options.Logger,
		activePollHint: hint,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/entries", h.handleEntries)
	mux.HandleFunc("/api/entries/active", h.handleActiveEntries)
	mux.HandleFunc("/api/entries/", h.handleEntrySubroutes)
	mux.HandleFunc("/api/queue/board", h.handleBoard)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createEntryRequest struct {
	RequestID       string `json:"request_id"`
	PersonID        string `json:"person_id"`
	PatientRecordID string `json:"patient_record_id"`
	Kind            string `json:"kind"`
	ServiceType     string `json:"service_type"`
	AccountType     string `json:"account_type"`
	BirthDate       string `json:"birth_date"`
	Sex             string `json:"sex"`
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createEntryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.PersonID = strings.TrimSpace(req.PersonID)
	req.PatientRecordID = strings.TrimSpace(req.PatientRecordID)
	req.Kind = strings.TrimSpace(req.Kind)
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.AccountType = strings.TrimSpace(req.AccountType)
	req.Sex = strings.TrimSpace(req.Sex)

	if req.RequestID == "" || req.PersonID == "" || req.PatientRecordID == "" || req.ServiceType == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, person_id, patient_record_id, and service_type are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.PersonID) || !isValidUUID(req.PatientRecordID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, person_id, and patient_record_id must be UUIDs")
		return
	}
	if req.Kind != "" && req.Kind != models.KindPrimaryMember && req.Kind != models.KindDependent {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "kind must be primary_member or dependent")
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "birth_date must be YYYY-MM-DD")
			return
		}
		birthDate = &parsed
	}

	entry, _, err := h.store.CreateEntry(r.Context(), store.CreateEntryInput{
		RequestID:       req.RequestID,
		PersonID:        req.PersonID,
		PatientRecordID: req.PatientRecordID,
		Kind:            req.Kind,
		ServiceType:     req.ServiceType,
		AccountType:     req.AccountType,
		BirthDate:       birthDate,
		Sex:             req.Sex,
		CheckInTime:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	h.refreshBoard(r)
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleActiveEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceType := strings.TrimSpace(r.URL.Query().Get("service_type"))
	entries, err := h.store.ListActive(r.Context(), serviceType)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	w.Header().Set("X-Suggested-Poll-Seconds", strconv.Itoa(h.activePollHint))
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.board == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	view, loaded := h.board.View()
	if !loaded {
		// Never present "not loaded yet" as an empty queue.
		writeError(w, "", http.StatusServiceUnavailable, "board_unavailable", "waiting-room view not loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleEntrySubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGetEntry(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "events":
		h.handleEntryEvents(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleEntryAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	entry, _, err := h.store.GetEntry(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleEntryEvents(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}

	events, err := h.store.ListEntryEvents(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type entryActionRequest struct {
	RequestID    string `json:"request_id"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

func (h *Handler) handleEntryAction(w http.ResponseWriter, r *http.Request, entryID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isValidUUID(entryID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}
	target, ok := actionTargets[action]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req entryActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	// Pure role gate before touching storage. A denial is an authorization
	// failure, distinct from a state conflict.
	if !store.RoleAllows(session.Role, target) {
		writeError(w, req.RequestID, http.StatusForbidden, "transition_denied", "role may not set this status")
		return
	}

	now := time.Now().UTC()
	var scheduledFor *time.Time
	if target == models.StatusPospuesto {
		raw := strings.TrimSpace(req.ScheduledFor)
		if raw == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "validation_failed", "scheduled_for is required to postpone")
			return
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "validation_failed", "scheduled_for must be an RFC3339 timestamp")
			return
		}
		if !parsed.After(now) {
			writeError(w, req.RequestID, http.StatusBadRequest, "validation_failed", "scheduled_for must be in the future")
			return
		}
		scheduledFor = &parsed
	}

	entry, _, err := h.store.ApplyTransition(r.Context(), store.TransitionInput{
		RequestID:    req.RequestID,
		EntryID:      entryID,
		ActorRole:    session.Role,
		ToStatus:     target,
		ScheduledFor: scheduledFor,
		OccurredAt:   now,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	h.refreshBoard(r)
	writeJSON(w, http.StatusOK, entry)
}

// refreshBoard forces the in-process waiting-room view to re-read after a
// local mutation, so the acting user's next render is current instead of
// waiting for the poll tick.
func (h *Handler) refreshBoard(r *http.Request) {
	if h.board == nil {
		return
	}
	if err := h.board.Refresh(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("board refresh after mutation failed")
	}
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition", "entry state does not allow this transition"
	case errors.Is(err, store.ErrValidationFailed):
		return http.StatusBadRequest, "validation_failed", "invalid transition payload"
	case errors.Is(err, store.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, "persistence_unavailable", "storage unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
