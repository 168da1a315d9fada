package controller

import (
	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
)

// View is an immutable, mutually consistent picture of the session.
// A new View is published after every change; old ones are never touched.
type View struct {
	Room       *models.Room
	SelfID     string
	Error      string
	Connection connection.State
	Joined     bool   // a join intent is held
	RoomCode   string // the code we asked to join
	Version    uint64
}

// Self returns our own entry in the room, or nil.
func (v *View) Self() *models.User {
	if v == nil {
		return nil
	}
	return v.Room.User(v.SelfID)
}

// IsFacilitator reports whether we hold the facilitator role.
func (v *View) IsFacilitator() bool {
	self := v.Self()
	return self != nil && self.IsFacilitator
}

// InRoom reports whether we have a confirmed identity and a snapshot.
func (v *View) InRoom() bool {
	return v != nil && v.SelfID != "" && v.Room != nil
}

func (v *View) sameAs(o *View) bool {
	return v.Room == o.Room &&
		v.SelfID == o.SelfID &&
		v.Error == o.Error &&
		v.Connection == o.Connection &&
		v.Joined == o.Joined &&
		v.RoomCode == o.RoomCode
}
