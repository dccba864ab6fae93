package models

import "time"

// WebUser is the business profile linked to an authentication identity.
type WebUser struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	AuthUserID   string    `db:"auth_user_id" json:"auth_user_id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Nickname     *string   `db:"nickname" json:"nickname,omitempty"`
	BirthDay     int       `db:"birth_day" json:"birth_day"`
	BirthMonth   string    `db:"birth_month" json:"birth_month"`
	Position     Position  `db:"position" json:"position"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName prefers the nickname over the full name.
func (u WebUser) DisplayName() string {
	if u.Nickname != nil && *u.Nickname != "" {
		return *u.Nickname
	}
	return u.FirstName + " " + u.LastName
}

// UserRole is one row of user_roles.
type UserRole struct {
	ID     string  `db:"id" json:"id"`
	UserID int64   `db:"user_id" json:"user_id"`
	Role   AppRole `db:"role" json:"role"`
}

// UserWithRoles is a profile together with its explicit role grants.
type UserWithRoles struct {
	WebUser
	Roles []AppRole `json:"roles"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Position *Position
	Active   *bool
	Search   string
}
