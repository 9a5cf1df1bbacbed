package store

import "github.com/noe-create/medidhub-cpv-sub000/internal/models"

// roleDestinations maps each staff role to the set of statuses it may set.
// The policy is destination-scoped: a role either may or may not place an
// entry into a given status, regardless of where the entry currently is.
// The current status only matters through the terminal rule below and the
// origin restriction on en_consulta.
var roleDestinations = map[models.Role]map[models.Status]struct{}{
	models.RoleAssistant: statusSet(
		models.StatusEsperando,
		models.StatusAusente,
		models.StatusPospuesto,
		models.StatusReevaluacion,
		models.StatusCancelado,
	),
	models.RoleNurse: statusSet(
		models.StatusEsperando,
		models.StatusEnTratamiento,
		models.StatusAusente,
		models.StatusPospuesto,
		models.StatusReevaluacion,
		models.StatusCancelado,
	),
	models.RoleAdministrator: statusSet(
		models.StatusEsperando,
		models.StatusEnTratamiento,
		models.StatusAusente,
		models.StatusPospuesto,
		models.StatusReevaluacion,
		models.StatusCancelado,
	),
	models.RolePhysician: statusSet(
		models.StatusEsperando,
		models.StatusEnConsulta,
		models.StatusEnTratamiento,
		models.StatusAusente,
		models.StatusPospuesto,
		models.StatusReevaluacion,
		models.StatusCancelado,
		models.StatusCompletado,
	),
	models.RoleSuperUser: statusSet(
		models.StatusEsperando,
		models.StatusEnConsulta,
		models.StatusEnTratamiento,
		models.StatusAusente,
		models.StatusPospuesto,
		models.StatusReevaluacion,
		models.StatusCancelado,
		models.StatusCompletado,
	),
}

// enConsultaOrigins restricts the attend transition: a patient can only be
// taken into consultation from the waiting line or a pending re-check.
var enConsultaOrigins = statusSet(models.StatusEsperando, models.StatusReevaluacion)

func statusSet(statuses ...models.Status) map[models.Status]struct{} {
	set := make(map[models.Status]struct{}, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return set
}

// IsTerminal reports whether an entry in this status is closed for good.
func IsTerminal(status models.Status) bool {
	return status == models.StatusCancelado || status == models.StatusCompletado
}

// RoleAllows reports whether the role may set the destination status at all.
// It never consults the database, so the same check can gate buttons in a
// client; the store re-enforces it before persisting.
func RoleAllows(role models.Role, to models.Status) bool {
	allowed, ok := roleDestinations[role]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// CanTransition is the full pure authorization check for a requested
// (role, from, to) triple. Terminal entries are immutable for every role.
func CanTransition(role models.Role, from, to models.Status) bool {
	if IsTerminal(from) {
		return false
	}
	return RoleAllows(role, to)
}

// ValidOrigin reports whether the state machine permits reaching to from
// from, independent of who asks.
func ValidOrigin(from, to models.Status) bool {
	if IsTerminal(from) {
		return false
	}
	if to == models.StatusEnConsulta {
		_, ok := enConsultaOrigins[from]
		return ok
	}
	return true
}
