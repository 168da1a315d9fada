package models

import (
	"time"
)

// User represents a participant in a planning poker room
type User struct {
	ID            string
	Name          string
	Connected     bool
	IsFacilitator bool
	Vote          Vote
	JoinedAt      time.Time
}

// Clone returns a copy of the user. Vote is a value type so a shallow copy suffices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
