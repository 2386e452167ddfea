package model

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Actor is the authenticated caller. An admin with an empty ClinicID is not
// restricted to a clinic.
type Actor struct {
	ID       string
	Role     Role
	ClinicID string
}
