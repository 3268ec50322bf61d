package domain

// Identity names a participant across connections. Email is the unique key;
// the display name comes from the user store and never changes while a
// connection is alive.
type Identity struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (i Identity) Equal(other Identity) bool {
	return i.Email == other.Email
}
