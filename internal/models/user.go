package models

import "time"

type Role string

const (
	RoleGuest     Role = "guest"
	RoleHost      Role = "host"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// User is an account. The password hash never leaves the service layer.
type User struct {
	ID           string    `json:"user_id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) String() string {
	return u.Email + " (" + string(u.Role) + ")"
}

func (u *User) OwnerID() string { return u.ID }

func (u *User) ConversationRef() string { return "" }
