package identity

import (
	"time"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/auth"
)

// User is a login. Patient users are named after the patient's file
// number.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is returned on successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      auth.Role `json:"role"`
}

// StaffPasswords seeds the initial doctor and assistant logins. Blank
// passwords are generated.
type StaffPasswords struct {
	Doctor    string
	Assistant string
}

// SeededUser reports a created staff login with the password it was given.
type SeededUser struct {
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
	Password string    `json:"password"`
}
