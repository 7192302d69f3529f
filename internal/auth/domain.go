package auth

import "time"

// User represents a registered account. PasswordHash holds a bcrypt hash,
// never plaintext, and does not leave this package; callers outside the
// login/registration flow receive a SafeUser.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SafeUser is the view of a User exposed to handlers and templates.
type SafeUser struct {
	ID       string
	Email    string
	FullName string
}

// Safe strips credential material from the user record.
func (u *User) Safe() *SafeUser {
	return &SafeUser{ID: u.ID, Email: u.Email, FullName: u.FullName}
}
