package protocol

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/pokersync/go/internal/models"
)

// ConcealedSentinel is the placeholder the authority broadcasts in place of a hidden vote.
const ConcealedSentinel = "hidden"

// Envelope is the frame every message travels in.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// User is the wire representation of a participant
type User struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Connected     bool    `json:"connected"`
	IsFacilitator bool    `json:"is_facilitator"`
	CurrentVote   *string `json:"current_vote"`
	JoinedAt      string  `json:"joined_at"`
}

// VoteHistory is the wire representation of a completed round
type VoteHistory struct {
	Round      int               `json:"round"`
	Votes      map[string]string `json:"votes"`
	RevealedAt string            `json:"revealed_at"`
}

// Room is the wire representation of a room, as sent in room_state
type Room struct {
	RoomCode     string          `json:"room_code"`
	CreatedAt    string          `json:"created_at"`
	State        string          `json:"state"`
	CurrentRound int             `json:"current_round"`
	Users        map[string]User `json:"users"`
	VoteHistory  []VoteHistory   `json:"vote_history"`
}

// Inbound payloads

type RoomJoinedPayload struct {
	RoomCode      string `json:"room_code"`
	UserID        string `json:"user_id"`
	IsFacilitator bool   `json:"is_facilitator"`
}

type UserJoinedPayload struct {
	User *User `json:"user"`
}

type UserIDPayload struct {
	UserID string `json:"user_id"`
}

type VotesRevealedPayload struct {
	Votes map[string]string `json:"votes"`
}

type RoundResetPayload struct {
	Round int `json:"round"`
}

type UserKickedPayload struct {
	UserID   string `json:"user_id"`
	KickedBy string `json:"kicked_by"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Outbound payloads

type JoinRoomPayload struct {
	RoomCode string `json:"room_code"`
	UserName string `json:"user_name"`
}

type SubmitVotePayload struct {
	Vote string `json:"vote"`
}

type KickUserPayload struct {
	UserID string `json:"user_id"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime accepts ISO 8601 with or without a zone. Timestamps are informational,
// so anything unparseable becomes the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func voteFromWire(v *string) models.Vote {
	switch {
	case v == nil || *v == "":
		return models.NoVote()
	case *v == ConcealedSentinel:
		return models.ConcealedVote()
	default:
		return models.RevealedVote(*v)
	}
}

// VoteToWire renders a vote the way the authority broadcasts it.
func VoteToWire(v models.Vote) *string {
	switch v.Kind() {
	case models.VoteConcealed:
		s := ConcealedSentinel
		return &s
	case models.VoteRevealed:
		s, _ := v.Value()
		return &s
	default:
		return nil
	}
}

// UserFromWire converts a wire user into the domain model.
func UserFromWire(u User) *models.User {
	return &models.User{
		ID:            u.ID,
		Name:          u.Name,
		Connected:     u.Connected,
		IsFacilitator: u.IsFacilitator,
		Vote:          voteFromWire(u.CurrentVote),
		JoinedAt:      parseTime(u.JoinedAt),
	}
}

func UserToWire(u *models.User) User {
	return User{
		ID:            u.ID,
		Name:          u.Name,
		Connected:     u.Connected,
		IsFacilitator: u.IsFacilitator,
		CurrentVote:   VoteToWire(u.Vote),
		JoinedAt:      formatTime(u.JoinedAt),
	}
}

// RoomFromWire converts a wire room into the domain model.
func RoomFromWire(r Room) (*models.Room, error) {
	phase, err := phaseFromWire(r.State)
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		Code:      r.RoomCode,
		CreatedAt: parseTime(r.CreatedAt),
		Phase:     phase,
		Round:     r.CurrentRound,
		Users:     make(map[string]*models.User, len(r.Users)),
		History:   make([]models.RoundRecord, 0, len(r.VoteHistory)),
	}
	for key, u := range r.Users {
		// The map key is authoritative when the nested id is missing.
		if u.ID == "" {
			u.ID = key
		}
		room.Users[u.ID] = UserFromWire(u)
	}
	for _, h := range r.VoteHistory {
		votes := make(map[string]string, len(h.Votes))
		for id, v := range h.Votes {
			votes[id] = v
		}
		room.History = append(room.History, models.RoundRecord{
			Round:      h.Round,
			Votes:      votes,
			RevealedAt: parseTime(h.RevealedAt),
		})
	}
	return room, nil
}

// RoomToWire converts a domain room into its wire form.
func RoomToWire(room *models.Room) Room {
	r := Room{
		RoomCode:     room.Code,
		CreatedAt:    formatTime(room.CreatedAt),
		State:        string(room.Phase),
		CurrentRound: room.Round,
		Users:        make(map[string]User, len(room.Users)),
		VoteHistory:  make([]VoteHistory, 0, len(room.History)),
	}
	for id, u := range room.Users {
		r.Users[id] = UserToWire(u)
	}
	for _, rec := range room.History {
		votes := make(map[string]string, len(rec.Votes))
		for id, v := range rec.Votes {
			votes[id] = v
		}
		r.VoteHistory = append(r.VoteHistory, VoteHistory{
			Round:      rec.Round,
			Votes:      votes,
			RevealedAt: formatTime(rec.RevealedAt),
		})
	}
	return r
}

func phaseFromWire(s string) (models.Phase, error) {
	switch models.Phase(s) {
	case models.PhaseVoting, "":
		return models.PhaseVoting, nil
	case models.PhaseRevealed:
		return models.PhaseRevealed, nil
	default:
		return "", &PayloadError{Type: "room_state", Reason: "unknown room state " + s}
	}
}
