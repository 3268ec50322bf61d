package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the durable participant profile kept by the user store.
// Credential handling lives outside this service; the signaling core only
// resolves users by email to attach an identity to a connection.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewUser(username string, email string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (u *User) Identity() Identity {
	return Identity{Email: u.Email, DisplayName: u.Username}
}
