package models

// Principal is the authenticated actor. A nil Position means the profile has not resolved.
type Principal struct {
	UserID   int64     `json:"user_id"`
	Position *Position `json:"position"`
	Roles    []AppRole `json:"roles"`
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role AppRole) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Capabilities is the derived permission set of a principal.
type Capabilities struct {
	CanView   bool      `json:"can_view"`
	CanCopy   bool      `json:"can_copy"`
	CanCreate bool      `json:"can_create"`
	CanEdit   bool      `json:"can_edit"`
	CanDelete bool      `json:"can_delete"`
	IsAdmin   bool      `json:"is_admin"`
	Position  *Position `json:"position"`
}

// Capability names one gate checked by routes.
type Capability string

const (
	CapabilityView   Capability = "view"
	CapabilityCopy   Capability = "copy"
	CapabilityCreate Capability = "create"
	CapabilityEdit   Capability = "edit"
	CapabilityDelete Capability = "delete"
	CapabilityAdmin  Capability = "admin"
)

// Session is the request-scoped context an audit entry is enriched with.
type Session struct {
	UserID    int64
	IPAddress string
	UserAgent string
}
