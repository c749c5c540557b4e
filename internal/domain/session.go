package domain

import "time"

// ============================================================
// Sessions & notifications
// ============================================================

// AdminSession reports the administrator session state.
type AdminSession struct {
	Authenticated  bool       `json:"authenticated"`
	Token          string     `json:"token,omitempty"`
	LastAuthAt     *time.Time `json:"lastAuthAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ReauthRequired bool       `json:"reauthRequired"`
}

// CustomerSession is the storefront login state. Token is only set on the
// response that opened the session.
type CustomerSession struct {
	Authenticated bool          `json:"authenticated"`
	Token         string        `json:"token,omitempty"`
	Customer      *CustomerView `json:"customer,omitempty"`
}

// LoginRequest is shared by admin and customer login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Notification is what the lifecycle engine decides to send; delivery is external.
type Notification struct {
	Channel    NotificationChannel `json:"channel"`
	CustomerID int64               `json:"customerId"`
	Phone      string              `json:"phone,omitempty"`
	OrderID    int64               `json:"orderId"`
	Message    string              `json:"message"`
}

// SyncStatus tells whether the last read or write of the state reached the substrate.
type SyncStatus struct {
	Synced    bool       `json:"synced"`
	LastError string     `json:"lastError,omitempty"`
	FailedAt  *time.Time `json:"failedAt,omitempty"`
}
