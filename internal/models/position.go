package models

import "fmt"

// Position is the organizational rank of a web user. It is distinct from AppRole.
type Position string

const (
	PositionMD         Position = "MD"
	PositionManagement Position = "Management"
	PositionQA         Position = "QA"
	PositionHOD        Position = "HOD"
	PositionDevOps     Position = "DevOps"
	PositionDeveloper  Position = "Developer"
	PositionEngineer   Position = "Engineer"
	PositionSenior     Position = "Senior"
	PositionJunior     Position = "Junior"
	PositionTrainee    Position = "Trainee"
	PositionNYSC       Position = "NYSC"
	PositionITSwiss    Position = "IT_Swiss"
)

var allPositions = []Position{
	PositionMD,
	PositionManagement,
	PositionQA,
	PositionHOD,
	PositionDevOps,
	PositionDeveloper,
	PositionEngineer,
	PositionSenior,
	PositionJunior,
	PositionTrainee,
	PositionNYSC,
	PositionITSwiss,
}

// AllPositions returns every known position, most senior first.
func AllPositions() []Position {
	out := make([]Position, len(allPositions))
	copy(out, allPositions)
	return out
}

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	for _, known := range allPositions {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePosition converts raw input into a Position.
func ParsePosition(raw string) (Position, error) {
	p := Position(raw)
	if !p.Valid() {
		return "", fmt.Errorf("unknown position %q", raw)
	}
	return p, nil
}

// AppRole is an explicit administrative grant stored in user_roles.
type AppRole string

const (
	RoleAdmin   AppRole = "Admin"
	RoleManager AppRole = "Manager"
	RoleViewer  AppRole = "Viewer"
)

// Valid reports whether r is a known role.
func (r AppRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleViewer:
		return true
	}
	return false
}
