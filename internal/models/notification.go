package models

import "time"

// NotificationType mirrors a subset of audit actions plus administrative events.
type NotificationType string

const (
	NotificationLogin            NotificationType = "LOGIN"
	NotificationLogout           NotificationType = "LOGOUT"
	NotificationCreate           NotificationType = "CREATE"
	NotificationCopy             NotificationType = "COPY"
	NotificationEdit             NotificationType = "EDIT"
	NotificationDelete           NotificationType = "DELETE"
	NotificationPermissionChange NotificationType = "PERMISSION_CHANGE"
	NotificationAccessDenied     NotificationType = "ACCESS_DENIED"
	NotificationSystemAlert      NotificationType = "SYSTEM_ALERT"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLogin, NotificationLogout, NotificationCreate, NotificationCopy, NotificationEdit,
		NotificationDelete, NotificationPermissionChange, NotificationAccessDenied, NotificationSystemAlert:
		return true
	}
	return false
}

// Notification is one recipient's copy of a fan-out. IsRead only moves false to true.
type Notification struct {
	NotificationID int64            `db:"notification_id" json:"notification_id"`
	UserID         int64            `db:"user_id" json:"user_id"`
	Type           NotificationType `db:"type" json:"type"`
	Title          string           `db:"title" json:"title"`
	Message        *string          `db:"message" json:"message,omitempty"`
	ReferenceType  *string          `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID    *int64           `db:"reference_id" json:"reference_id,omitempty"`
	IsRead         bool             `db:"is_read" json:"is_read"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// NotifyRequest describes one fan-out.
type NotifyRequest struct {
	UserIDs       []int64          `json:"user_ids"`
	Type          NotificationType `json:"type" binding:"required"`
	Title         string           `json:"title" binding:"required,max=200"`
	Message       string           `json:"message" binding:"max=1000"`
	ReferenceType string           `json:"reference_type" binding:"max=50"`
	ReferenceID   *int64           `json:"reference_id"`
	NotifyAdmins  bool             `json:"notify_admins"`
}

// NotifyResult lists which recipients received a row.
type NotifyResult struct {
	Delivered []int64 `json:"delivered"`
	Failed    []int64 `json:"failed,omitempty"`
}

// NotificationEvent is a push hint telling the recipient to re-fetch its feed.
type NotificationEvent struct {
	UserID         int64            `json:"user_id"`
	NotificationID int64            `json:"notification_id,omitempty"`
	Type           NotificationType `json:"type,omitempty"`
	At             time.Time        `json:"at"`
}
