package store

import (
	"testing"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"
)

var allRoles = []models.Role{
	models.RoleAssistant,
	models.RoleAdministrator,
	models.RoleNurse,
	models.RolePhysician,
	models.RoleSuperUser,
}

var allStatuses = []models.Status{
	models.StatusEsperando,
	models.StatusEnConsulta,
	models.StatusEnTratamiento,
	models.StatusAusente,
	models.StatusPospuesto,
	models.StatusReevaluacion,
	models.StatusCancelado,
	models.StatusCompletado,
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		role    models.Role
		from    models.Status
		to      models.Status
		allowed bool
	}{
		{models.RolePhysician, models.StatusEsperando, models.StatusEnConsulta, true},
		{models.RoleSuperUser, models.StatusReevaluacion, models.StatusEnConsulta, true},
		{models.RoleAssistant, models.StatusEsperando, models.StatusEnConsulta, false},
		{models.RoleNurse, models.StatusEsperando, models.StatusEnConsulta, false},
		{models.RoleAdministrator, models.StatusEsperando, models.StatusEnConsulta, false},

		{models.RolePhysician, models.StatusEnConsulta, models.StatusCompletado, true},
		{models.RoleSuperUser, models.StatusEnConsulta, models.StatusCompletado, true},
		{models.RoleAssistant, models.StatusEnConsulta, models.StatusCompletado, false},
		{models.RoleAdministrator, models.StatusEnConsulta, models.StatusCompletado, false},

		{models.RoleNurse, models.StatusEsperando, models.StatusEnTratamiento, true},
		{models.RoleAssistant, models.StatusEsperando, models.StatusEnTratamiento, false},
		{models.RoleAdministrator, models.StatusEsperando, models.StatusEnTratamiento, true},

		{models.RoleAssistant, models.StatusEsperando, models.StatusPospuesto, true},
		{models.RoleAssistant, models.StatusEsperando, models.StatusAusente, true},
		{models.RoleAssistant, models.StatusAusente, models.StatusEsperando, true},
		{models.RoleAssistant, models.StatusEsperando, models.StatusReevaluacion, true},

		{models.RoleAssistant, models.StatusEsperando, models.StatusCancelado, true},
		{models.RoleNurse, models.StatusEnTratamiento, models.StatusCancelado, true},
		{models.RoleAdministrator, models.StatusPospuesto, models.StatusCancelado, true},
		{models.RolePhysician, models.StatusEnConsulta, models.StatusCancelado, true},
		{models.RoleSuperUser, models.StatusEsperando, models.StatusCancelado, true},

		{models.Role("receptionist"), models.StatusEsperando, models.StatusCancelado, false},
	}

	for _, tt := range cases {
		if got := CanTransition(tt.role, tt.from, tt.to); got != tt.allowed {
			t.Fatalf("CanTransition(%q, %q, %q)=%v, want %v", tt.role, tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestCanTransitionTerminalEntriesImmutable(t *testing.T) {
	for _, role := range allRoles {
		for _, from := range []models.Status{models.StatusCancelado, models.StatusCompletado} {
			for _, to := range allStatuses {
				if CanTransition(role, from, to) {
					t.Fatalf("CanTransition(%q, %q, %q) allowed a terminal mutation", role, from, to)
				}
			}
		}
	}
}

func TestCanTransitionIsPure(t *testing.T) {
	for _, role := range allRoles {
		for _, from := range allStatuses {
			for _, to := range allStatuses {
				first := CanTransition(role, from, to)
				second := CanTransition(role, from, to)
				if first != second {
					t.Fatalf("CanTransition(%q, %q, %q) not stable across calls", role, from, to)
				}
			}
		}
	}
}

func TestValidOrigin(t *testing.T) {
	cases := []struct {
		from  models.Status
		to    models.Status
		valid bool
	}{
		{models.StatusEsperando, models.StatusEnConsulta, true},
		{models.StatusReevaluacion, models.StatusEnConsulta, true},
		{models.StatusEnTratamiento, models.StatusEnConsulta, false},
		{models.StatusPospuesto, models.StatusEnConsulta, false},
		{models.StatusAusente, models.StatusEnConsulta, false},
		{models.StatusEsperando, models.StatusPospuesto, true},
		{models.StatusPospuesto, models.StatusEsperando, true},
		{models.StatusCancelado, models.StatusEsperando, false},
		{models.StatusCompletado, models.StatusCancelado, false},
	}

	for _, tt := range cases {
		if got := ValidOrigin(tt.from, tt.to); got != tt.valid {
			t.Fatalf("ValidOrigin(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
