package events

import (
	"github.com/mcdev12/pokersync/go/internal/models"
)

// Event types shared between the protocol codec and the room state store.

// Event is an inbound message from the authority.
type Event interface {
	EventName() string
	isEvent()
}

// RoomJoined confirms our own join and tells us who we are.
type RoomJoined struct {
	RoomCode      string
	UserID        string
	IsFacilitator bool
}

// RoomSnapshot carries the full room for resynchronization.
type RoomSnapshot struct {
	Room *models.Room
}

type UserJoined struct {
	User *models.User
}

type UserLeft struct {
	UserID string
}

type UserDisconnected struct {
	UserID string
}

// VoteSubmitted says a user has voted without telling us the value.
type VoteSubmitted struct {
	UserID string
}

type VoteCleared struct {
	UserID string
}

// VotesRevealed carries every cast vote, keyed by user id.
type VotesRevealed struct {
	Votes map[string]string
}

// RoundReset starts a new voting round.
type RoundReset struct {
	Round int
}

type UserKicked struct {
	UserID   string
	KickedBy string
}

// ProtocolError is an error the authority reports about one of our commands.
type ProtocolError struct {
	Message string
	Code    string
}

const (
	NameRoomJoined       = "room_joined"
	NameRoomState        = "room_state"
	NameUserJoined       = "user_joined"
	NameUserLeft         = "user_left"
	NameUserDisconnected = "user_disconnected"
	NameVoteSubmitted    = "vote_submitted"
	NameVoteCleared      = "vote_cleared"
	NameVotesRevealed    = "votes_revealed"
	NameRoundReset       = "round_reset"
	NameUserKicked       = "user_kicked"
	NameError            = "error"
)

func (RoomJoined) EventName() string       { return NameRoomJoined }
func (RoomSnapshot) EventName() string     { return NameRoomState }
func (UserJoined) EventName() string       { return NameUserJoined }
func (UserLeft) EventName() string         { return NameUserLeft }
func (UserDisconnected) EventName() string { return NameUserDisconnected }
func (VoteSubmitted) EventName() string    { return NameVoteSubmitted }
func (VoteCleared) EventName() string      { return NameVoteCleared }
func (VotesRevealed) EventName() string    { return NameVotesRevealed }
func (RoundReset) EventName() string       { return NameRoundReset }
func (UserKicked) EventName() string       { return NameUserKicked }
func (ProtocolError) EventName() string    { return NameError }

func (RoomJoined) isEvent()       {}
func (RoomSnapshot) isEvent()     {}
func (UserJoined) isEvent()       {}
func (UserLeft) isEvent()         {}
func (UserDisconnected) isEvent() {}
func (VoteSubmitted) isEvent()    {}
func (VoteCleared) isEvent()      {}
func (VotesRevealed) isEvent()    {}
func (RoundReset) isEvent()       {}
func (UserKicked) isEvent()       {}
func (ProtocolError) isEvent()    {}

// Command is an outbound message to the authority.
type Command interface {
	CommandName() string
	isCommand()
}

type JoinRoom struct {
	RoomCode string
	UserName string
}

type LeaveRoom struct{}

// SubmitVote carries a concrete card value. The concealment placeholder is never a valid value.
type SubmitVote struct {
	Vote string
}

type ClearVote struct{}

type RevealVotes struct{}

type ResetRound struct{}

type KickUser struct {
	UserID string
}

const (
	NameJoinRoom    = "join_room"
	NameLeaveRoom   = "leave_room"
	NameSubmitVote  = "submit_vote"
	NameClearVote   = "clear_vote"
	NameRevealVotes = "reveal_votes"
	NameResetRound  = "reset_round"
	NameKickUser    = "kick_user"
)

func (JoinRoom) CommandName() string    { return NameJoinRoom }
func (LeaveRoom) CommandName() string   { return NameLeaveRoom }
func (SubmitVote) CommandName() string  { return NameSubmitVote }
func (ClearVote) CommandName() string   { return NameClearVote }
func (RevealVotes) CommandName() string { return NameRevealVotes }
func (ResetRound) CommandName() string  { return NameResetRound }
func (KickUser) CommandName() string    { return NameKickUser }

func (JoinRoom) isCommand()    {}
func (LeaveRoom) isCommand()   {}
func (SubmitVote) isCommand()  {}
func (ClearVote) isCommand()   {}
func (RevealVotes) isCommand() {}
func (ResetRound) isCommand()  {}
func (KickUser) isCommand()    {}
