package service

import (
	"fmt"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

// AccessPolicy derives capability sets from a position and role grants. It holds no
// mutable state and is safe for concurrent use.
type AccessPolicy struct {
	editPositions []models.Position
	editable      map[models.Position]struct{}
}

// NewAccessPolicy builds a policy granting create, edit and delete to the listed positions.
// Unknown or duplicate names are configuration errors.
func NewAccessPolicy(editPositions []string) (*AccessPolicy, error) {
	p := &AccessPolicy{editable: make(map[models.Position]struct{}, len(editPositions))}
	for _, raw := range editPositions {
		position, err := models.ParsePosition(raw)
		if err != nil {
			return nil, fmt.Errorf("edit positions: %w", err)
		}
		if _, dup := p.editable[position]; dup {
			return nil, fmt.Errorf("edit positions: %q listed twice", raw)
		}
		p.editable[position] = struct{}{}
		p.editPositions = append(p.editPositions, position)
	}
	return p, nil
}

// EditPositions returns the configured edit-allowed positions in order.
func (p *AccessPolicy) EditPositions() []models.Position {
	out := make([]models.Position, len(p.editPositions))
	copy(out, p.editPositions)
	return out
}

// CanEditAsPosition reports whether position alone grants create, edit and delete.
func (p *AccessPolicy) CanEditAsPosition(position models.Position) bool {
	_, ok := p.editable[position]
	return ok
}

// Resolve maps a position and role set to capabilities. A nil position means the profile
// has not loaded and yields the all-false set.
func (p *AccessPolicy) Resolve(position *models.Position, roles []models.AppRole) models.Capabilities {
	if position == nil {
		return models.Capabilities{}
	}

	resolved := *position
	hasAdminRole := false
	for _, role := range roles {
		if role == models.RoleAdmin {
			hasAdminRole = true
			break
		}
	}

	if hasAdminRole || resolved == models.PositionMD {
		return models.Capabilities{
			CanView:   true,
			CanCopy:   true,
			CanCreate: true,
			CanEdit:   true,
			CanDelete: true,
			IsAdmin:   true,
			Position:  &resolved,
		}
	}

	editAllowed := p.CanEditAsPosition(resolved)
	return models.Capabilities{
		CanView:   true,
		CanCopy:   true,
		CanCreate: editAllowed,
		CanEdit:   editAllowed,
		CanDelete: editAllowed,
		Position:  &resolved,
	}
}

// ResolvePrincipal resolves an authenticated actor. A nil principal fails closed.
func (p *AccessPolicy) ResolvePrincipal(principal *models.Principal) models.Capabilities {
	if principal == nil {
		return models.Capabilities{}
	}
	return p.Resolve(principal.Position, principal.Roles)
}

// Allows checks a single capability.
func (p *AccessPolicy) Allows(caps models.Capabilities, capability models.Capability) bool {
	switch capability {
	case models.CapabilityView:
		return caps.CanView
	case models.CapabilityCopy:
		return caps.CanCopy
	case models.CapabilityCreate:
		return caps.CanCreate
	case models.CapabilityEdit:
		return caps.CanEdit
	case models.CapabilityDelete:
		return caps.CanDelete
	case models.CapabilityAdmin:
		return caps.IsAdmin
	default:
		return false
	}
}
