package domain

import "time"

// ============================================================
// Customers
// ============================================================

// Role distinguishes storefront customers from staff accounts.
type Role string

const (
	RoleCustomer      Role = "Customer"
	RoleAdministrator Role = "Administrator"
)

// NotificationChannel is the customer's preferred delivery channel for order updates.
type NotificationChannel string

const (
	ChannelWebApp   NotificationChannel = "webapp"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

// Address is the structured delivery address (filled from a CEP lookup on the front-end).
type Address struct {
	PostalCode   string `json:"postalCode,omitempty"`
	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Number       string `json:"number,omitempty"`
}

// Customer is a storefront account. PasswordHash is a bcrypt hash, never plaintext.
type Customer struct {
	ID                     int64               `json:"id"`
	Name                   string              `json:"name"`
	Username               string              `json:"username"`
	PasswordHash           string              `json:"passwordHash,omitempty"`
	Email                  string              `json:"email,omitempty"`
	Phone                  string              `json:"phone,omitempty"`
	Address                Address             `json:"address"`
	NotificationPreference NotificationChannel `json:"notificationPreference"`
	Role                   Role                `json:"role"`
	CreatedAt              time.Time           `json:"createdAt"`
}

// CustomerView is the public projection of a Customer (no credential material).
type CustomerView struct {
	ID                     int64               `json:"id"`
	Name                   string              `json:"name"`
	Username               string              `json:"username"`
	Email                  string              `json:"email,omitempty"`
	Phone                  string              `json:"phone,omitempty"`
	Address                Address             `json:"address"`
	NotificationPreference NotificationChannel `json:"notificationPreference"`
	Role                   Role                `json:"role"`
	CreatedAt              time.Time           `json:"createdAt"`
}

// View strips the password hash.
func (c Customer) View() CustomerView {
	return CustomerView{
		ID:                     c.ID,
		Name:                   c.Name,
		Username:               c.Username,
		Email:                  c.Email,
		Phone:                  c.Phone,
		Address:                c.Address,
		NotificationPreference: c.NotificationPreference,
		Role:                   c.Role,
		CreatedAt:              c.CreatedAt,
	}
}

// CustomerInput carries the fields accepted by signup and the admin customer form.
// A blank Username is derived from Name; a blank Password on update keeps the current hash.
type CustomerInput struct {
	Name                   string              `json:"name" validate:"required"`
	Username               string              `json:"username"`
	Password               string              `json:"password"`
	Email                  string              `json:"email" validate:"omitempty,email"`
	Phone                  string              `json:"phone"`
	Address                Address             `json:"address"`
	NotificationPreference NotificationChannel `json:"notificationPreference" validate:"omitempty,oneof=webapp whatsapp"`
	Role                   Role                `json:"role" validate:"omitempty,oneof=Customer Administrator"`
}
