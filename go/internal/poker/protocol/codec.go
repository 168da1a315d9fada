package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/pokersync/go/internal/poker/events"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrUnknownCommand = errors.New("unknown command type")
	ErrInvalidVote    = errors.New("invalid vote value")
)

// PayloadError reports a frame whose payload does not match its type.
type PayloadError struct {
	Type   string
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s payload: %s: %v", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Type, e.Reason)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ValidateVote rejects values that must never be sent as a vote.
func ValidateVote(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidVote)
	}
	if v == ConcealedSentinel {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidVote, v)
	}
	return nil
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return &PayloadError{Type: env.Type, Reason: "malformed json", Err: err}
	}
	return nil
}

func requireUserID(typ, id string) error {
	if id == "" {
		return &PayloadError{Type: typ, Reason: "missing user_id"}
	}
	return nil
}

// DecodeEvent parses one inbound frame into a typed event.
func DecodeEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case events.NameRoomJoined:
		var p RoomJoinedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if err := requireUserID(env.Type, p.UserID); err != nil {
			return nil, err
		}
		return events.RoomJoined{RoomCode: p.RoomCode, UserID: p.UserID, IsFacilitator: p.IsFacilitator}, nil

	case events.NameRoomState:
		var p Room
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		room, err := RoomFromWire(p)
		if err != nil {
			return nil, err
		}
		return events.RoomSnapshot{Room: room}, nil

	case events.NameUserJoined:
		var p UserJoinedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.User == nil {
			return nil, &PayloadError{Type: env.Type, Reason: "missing user"}
		}
		if err := requireUserID(env.Type, p.User.ID); err != nil {
			return nil, err
		}
		return events.UserJoined{User: UserFromWire(*p.User)}, nil

	case events.NameUserLeft, events.NameUserDisconnected, events.NameVoteSubmitted, events.NameVoteCleared:
		var p UserIDPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if err := requireUserID(env.Type, p.UserID); err != nil {
			return nil, err
		}
		switch env.Type {
		case events.NameUserLeft:
			return events.UserLeft{UserID: p.UserID}, nil
		case events.NameUserDisconnected:
			return events.UserDisconnected{UserID: p.UserID}, nil
		case events.NameVoteSubmitted:
			return events.VoteSubmitted{UserID: p.UserID}, nil
		default:
			return events.VoteCleared{UserID: p.UserID}, nil
		}

	case events.NameVotesRevealed:
		var p VotesRevealedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Votes == nil {
			p.Votes = map[string]string{}
		}
		return events.VotesRevealed{Votes: p.Votes}, nil

	case events.NameRoundReset:
		var p RoundResetPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return events.RoundReset{Round: p.Round}, nil

	case events.NameUserKicked:
		var p UserKickedPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if err := requireUserID(env.Type, p.UserID); err != nil {
			return nil, err
		}
		return events.UserKicked{UserID: p.UserID, KickedBy: p.KickedBy}, nil

	case events.NameError:
		var p ErrorPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return events.ProtocolError{Message: p.Message, Code: p.Code}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// EncodeEvent renders an event in wire form. The client never sends events;
// this exists for authorities and test harnesses speaking the same protocol.
func EncodeEvent(ev events.Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case events.RoomJoined:
		payload = RoomJoinedPayload{RoomCode: e.RoomCode, UserID: e.UserID, IsFacilitator: e.IsFacilitator}
	case events.RoomSnapshot:
		if e.Room == nil {
			return nil, &PayloadError{Type: ev.EventName(), Reason: "nil room"}
		}
		payload = RoomToWire(e.Room)
	case events.UserJoined:
		if e.User == nil {
			return nil, &PayloadError{Type: ev.EventName(), Reason: "nil user"}
		}
		u := UserToWire(e.User)
		payload = UserJoinedPayload{User: &u}
	case events.UserLeft:
		payload = UserIDPayload{UserID: e.UserID}
	case events.UserDisconnected:
		payload = UserIDPayload{UserID: e.UserID}
	case events.VoteSubmitted:
		payload = UserIDPayload{UserID: e.UserID}
	case events.VoteCleared:
		payload = UserIDPayload{UserID: e.UserID}
	case events.VotesRevealed:
		payload = VotesRevealedPayload{Votes: e.Votes}
	case events.RoundReset:
		payload = RoundResetPayload{Round: e.Round}
	case events.UserKicked:
		payload = UserKickedPayload{UserID: e.UserID, KickedBy: e.KickedBy}
	case events.ProtocolError:
		payload = ErrorPayload{Message: e.Message, Code: e.Code}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return encode(ev.EventName(), payload)
}

// EncodeCommand renders an outbound command.
func EncodeCommand(cmd events.Command) ([]byte, error) {
	var payload any
	switch c := cmd.(type) {
	case events.JoinRoom:
		payload = JoinRoomPayload{RoomCode: c.RoomCode, UserName: c.UserName}
	case events.SubmitVote:
		if err := ValidateVote(c.Vote); err != nil {
			return nil, err
		}
		payload = SubmitVotePayload{Vote: c.Vote}
	case events.KickUser:
		payload = KickUserPayload{UserID: c.UserID}
	case events.LeaveRoom, events.ClearVote, events.RevealVotes, events.ResetRound:
		payload = struct{}{}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return encode(cmd.CommandName(), payload)
}

// DecodeCommand parses an outbound frame. Used by authorities and test harnesses.
func DecodeCommand(data []byte) (events.Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case events.NameJoinRoom:
		var p JoinRoomPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return events.JoinRoom{RoomCode: p.RoomCode, UserName: p.UserName}, nil
	case events.NameSubmitVote:
		var p SubmitVotePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return events.SubmitVote{Vote: p.Vote}, nil
	case events.NameKickUser:
		var p KickUserPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return events.KickUser{UserID: p.UserID}, nil
	case events.NameLeaveRoom:
		return events.LeaveRoom{}, nil
	case events.NameClearVote:
		return events.ClearVote{}, nil
	case events.NameRevealVotes:
		return events.RevealVotes{}, nil
	case events.NameResetRound:
		return events.ResetRound{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
}

func encode(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}
