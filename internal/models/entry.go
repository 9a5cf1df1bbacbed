package models

import "time"

// Status is the closed set of waiting-room states a queue entry can be in.
type Status string

const (
	StatusEsperando     Status = "esperando"
	StatusEnConsulta    Status = "en_consulta"
	StatusEnTratamiento Status = "en_tratamiento"
	StatusAusente       Status = "ausente"
	StatusPospuesto     Status = "pospuesto"
	StatusReevaluacion  Status = "reevaluacion"
	StatusCancelado     Status = "cancelado"
	StatusCompletado    Status = "completado"
)

// Role identifies the acting staff member's position.
type Role string

const (
	RoleAssistant     Role = "assistant"
	RoleAdministrator Role = "administrator"
	RoleNurse         Role = "nurse"
	RolePhysician     Role = "physician"
	RoleSuperUser     Role = "superuser"
)

const (
	KindPrimaryMember = "primary_member"
	KindDependent     = "dependent"
)

// Known service-type lanes. The column is free-form text so new clinics can
// add lanes without a migration; these are the ones the portal ships with.
const (
	ServiceFamilyMedicine = "medicina_familiar"
	ServicePediatrics     = "pediatria"
	ServiceNursing        = "servicio_enfermeria"
)

// QueueEntry is one person's single pass through the waiting room.
// CheckInTime is set once at creation and never changes. ScheduledFor is
// present exactly when Status is pospuesto.
type QueueEntry struct {
	EntryID         string     `json:"entry_id"`
	RequestID       string     `json:"request_id,omitempty"`
	PersonID        string     `json:"person_id"`
	PatientRecordID string     `json:"patient_record_id"`
	Kind            string     `json:"kind"`
	ServiceType     string     `json:"service_type"`
	AccountType     string     `json:"account_type,omitempty"`
	Status          Status     `json:"status"`
	CheckInTime     time.Time  `json:"check_in_time"`
	AttendedAt      *time.Time `json:"attended_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ScheduledFor    *time.Time `json:"scheduled_for,omitempty"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	Sex             string     `json:"sex,omitempty"`
}
