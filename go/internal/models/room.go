package models

import (
	"maps"
	"time"
)

// Phase defines whether vote values are visible.
type Phase string

const (
	PhaseVoting   Phase = "voting"
	PhaseRevealed Phase = "revealed"
)

// RoundRecord is a completed round kept in the room history.
type RoundRecord struct {
	Round      int
	Votes      map[string]string // user id -> card value
	RevealedAt time.Time
}

// Room is the local mirror of the authority's room.
type Room struct {
	Code      string
	CreatedAt time.Time
	Phase     Phase
	Round     int
	Users     map[string]*User
	History   []RoundRecord
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}

	c := &Room{
		Code:      r.Code,
		CreatedAt: r.CreatedAt,
		Phase:     r.Phase,
		Round:     r.Round,
		Users:     make(map[string]*User, len(r.Users)),
		History:   make([]RoundRecord, len(r.History)),
	}
	for id, u := range r.Users {
		c.Users[id] = u.Clone()
	}
	for i, rec := range r.History {
		c.History[i] = RoundRecord{
			Round:      rec.Round,
			Votes:      maps.Clone(rec.Votes),
			RevealedAt: rec.RevealedAt,
		}
	}
	return c
}

// User returns the user with the given id, or nil.
func (r *Room) User(id string) *User {
	if r == nil || id == "" {
		return nil
	}
	return r.Users[id]
}

// LastRecord returns the most recent history entry.
func (r *Room) LastRecord() (RoundRecord, bool) {
	if r == nil || len(r.History) == 0 {
		return RoundRecord{}, false
	}
	return r.History[len(r.History)-1], true
}

// Facilitators returns the ids of every user the authority marked as facilitator.
// Normally there is exactly one, but nothing here enforces that.
func (r *Room) Facilitators() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for id, u := range r.Users {
		if u.IsFacilitator {
			ids = append(ids, id)
		}
	}
	return ids
}
