package models

import "time"

// Environment classifies a client system.
type Environment string

const (
	EnvironmentProduction  Environment = "Production"
	EnvironmentTest        Environment = "Test"
	EnvironmentDR          Environment = "DR"
	EnvironmentDevelopment Environment = "Development"
)

// Client is a customer whose systems are tracked.
type Client struct {
	ClientID      int64     `db:"client_id" json:"client_id"`
	ClientCode    string    `db:"client_code" json:"client_code"`
	ClientName    string    `db:"client_name" json:"client_name"`
	Industry      *string   `db:"industry" json:"industry,omitempty"`
	Division      *string   `db:"division" json:"division,omitempty"`
	ContactPerson *string   `db:"contact_person" json:"contact_person,omitempty"`
	ContactEmail  *string   `db:"contact_email" json:"contact_email,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	Status        string    `db:"status" json:"status"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SystemType is a catalogue entry such as "Core Banking".
type SystemType struct {
	SystemTypeID   int64   `db:"system_type_id" json:"system_type_id"`
	SystemTypeName string  `db:"system_type_name" json:"system_type_name"`
	Description    *string `db:"description" json:"description,omitempty"`
	IsActive       bool    `db:"is_active" json:"is_active"`
}

// ClientSystem is one host belonging to a client.
type ClientSystem struct {
	SystemID       int64        `db:"system_id" json:"system_id"`
	ClientID       int64        `db:"client_id" json:"client_id"`
	SystemTypeID   int64        `db:"system_type_id" json:"system_type_id"`
	SystemTypeName *string      `db:"system_type_name" json:"system_type_name,omitempty"`
	SystemName     string       `db:"system_name" json:"system_name"`
	Environment    *Environment `db:"environment" json:"environment,omitempty"`
	Host           *string      `db:"host" json:"host,omitempty"`
	IPAddress      *string      `db:"ip_address" json:"ip_address,omitempty"`
	Description    *string      `db:"description" json:"description,omitempty"`
	IsActive       bool         `db:"is_active" json:"is_active"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// Credential is one stored secret for a system.
type Credential struct {
	CredentialID   int64      `db:"credential_id" json:"credential_id"`
	SystemID       int64      `db:"system_id" json:"system_id"`
	CredentialType *string    `db:"credential_type" json:"credential_type,omitempty"`
	Username       *string    `db:"username" json:"username,omitempty"`
	PasswordValue  string     `db:"password_value" json:"password_value"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	ExpiryDate     *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedBy      *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SystemWithCredentials nests a system's credentials.
type SystemWithCredentials struct {
	ClientSystem
	Credentials []Credential `json:"credentials"`
}

// ClientWithSystems is the full detail view returned by search.
type ClientWithSystems struct {
	Client
	Systems []SystemWithCredentials `json:"systems"`
}

// CredentialInput is the writable part of a credential.
type CredentialInput struct {
	SystemID       int64      `json:"system_id" validate:"required,gt=0"`
	CredentialType string     `json:"credential_type" validate:"max=50"`
	Username       string     `json:"username" validate:"max=255"`
	PasswordValue  string     `json:"password_value" validate:"required"`
	Notes          string     `json:"notes" validate:"max=2000"`
	ExpiryDate     *time.Time `json:"expiry_date"`
}
