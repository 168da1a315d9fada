package roomstate

import (
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/events"
	"github.com/mcdev12/pokersync/go/internal/poker/protocol"
)

// Store holds the canonical room snapshot plus the local-only identity and error.
//
// Store is not safe for concurrent use. It is owned by a single dispatcher;
// readers receive snapshots, which are never mutated after they are handed out.
type Store struct {
	room         *models.Room
	selfID       string
	pendingError string
	clock        clockwork.Clock
}

// NewStore creates an empty store. The clock stamps locally recorded reveals.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock}
}

// Snapshot returns the current room, or nil when there is none.
func (s *Store) Snapshot() *models.Room { return s.room }

// SelfID returns the id the authority assigned us, or "".
func (s *Store) SelfID() string { return s.selfID }

// PendingError returns the last surfaced error message.
func (s *Store) PendingError() string { return s.pendingError }

func (s *Store) SetError(msg string) { s.pendingError = msg }

func (s *Store) ClearError() { s.pendingError = "" }

// Reset discards the snapshot and identity. The pending error survives.
func (s *Store) Reset() {
	s.room = nil
	s.selfID = ""
}

// mutate applies fn to a copy of the room and swaps it in.
func (s *Store) mutate(fn func(r *models.Room)) {
	next := s.room.Clone()
	fn(next)
	s.room = next
}

// SetOwnVote applies an optimistic vote to our own entry.
func (s *Store) SetOwnVote(value string) error {
	if s.selfID == "" {
		return ErrNotJoined
	}
	if s.room == nil {
		return ErrNoSnapshot
	}
	if s.room.User(s.selfID) == nil {
		return ErrUnknownUser
	}
	s.mutate(func(r *models.Room) {
		r.Users[s.selfID].Vote = models.RevealedVote(value)
	})
	return nil
}

// Apply runs the transition for ev against the current snapshot.
//
// It returns nil when the event was applied, a *SkipError when the event
// could not apply and was ignored, or ErrRemovedFromRoom when we were kicked
// and the session is gone.
func (s *Store) Apply(ev events.Event) error {
	switch e := ev.(type) {
	case events.RoomJoined:
		return s.applyRoomJoined(e)
	case events.RoomSnapshot:
		return s.applyRoomSnapshot(e)
	case events.UserJoined:
		return s.applyUserJoined(e)
	case events.UserLeft:
		return s.applyUserLeft(e)
	case events.UserDisconnected:
		return s.applyUserDisconnected(e)
	case events.VoteSubmitted:
		return s.applyVoteSubmitted(e)
	case events.VoteCleared:
		return s.applyVoteCleared(e)
	case events.VotesRevealed:
		return s.applyVotesRevealed(e)
	case events.RoundReset:
		return s.applyRoundReset(e)
	case events.UserKicked:
		return s.applyUserKicked(e)
	case events.ProtocolError:
		return s.applyProtocolError(e)
	default:
		return &SkipError{Event: "unknown", Err: ErrUnhandledEvent}
	}
}

func (s *Store) applyRoomJoined(e events.RoomJoined) error {
	if s.room != nil && !strings.EqualFold(s.room.Code, e.RoomCode) {
		s.room = nil
	}
	s.selfID = e.UserID

	if s.room != nil && s.room.User(e.UserID) != nil {
		s.mutate(func(r *models.Room) {
			r.Users[e.UserID].IsFacilitator = e.IsFacilitator
		})
	}
	return nil
}

func (s *Store) applyRoomSnapshot(e events.RoomSnapshot) error {
	if e.Room == nil {
		return &SkipError{Event: e.EventName(), Err: ErrNoSnapshot}
	}

	next := e.Room.Clone()
	if next.Users == nil {
		next.Users = make(map[string]*models.User)
	}

	var prevSelf *models.User
	if s.room != nil && strings.EqualFold(s.room.Code, next.Code) {
		prevSelf = s.room.User(s.selfID)
	}

	for id, u := range next.Users {
		u.Vote = s.visibleVote(next.Phase, id, u.Vote)
		// Our own optimistic card survives a snapshot that only knows we voted.
		if id == s.selfID && prevSelf != nil && next.Phase == models.PhaseVoting &&
			u.Vote.Kind() == models.VoteConcealed && prevSelf.Vote.Kind() == models.VoteRevealed {
			u.Vote = prevSelf.Vote
		}
	}
	s.room = next
	return nil
}

func (s *Store) applyUserJoined(e events.UserJoined) error {
	if s.room == nil {
		return &SkipError{Event: e.EventName(), Err: ErrNoSnapshot}
	}
	if e.User == nil {
		return &SkipError{Event: e.EventName(), Err: ErrUnknownUser}
	}
	if s.room.User(e.User.ID) != nil {
		return &SkipError{Event: e.EventName(), UserID: e.User.ID, Err: ErrDuplicateUser}
	}

	u := e.User.Clone()
	s.mutate(func(r *models.Room) {
		u.Vote = s.visibleVote(r.Phase, u.ID, u.Vote)
		r.Users[u.ID] = u
	})
	return nil
}

func (s *Store) applyUserLeft(e events.UserLeft) error {
	if err := s.requireUser(e.EventName(), e.UserID); err != nil {
		return err
	}
	s.mutate(func(r *models.Room) {
		delete(r.Users, e.UserID)
	})
	return nil
}

func (s *Store) applyUserDisconnected(e events.UserDisconnected) error {
	if err := s.requireUser(e.EventName(), e.UserID); err != nil {
		return err
	}
	s.mutate(func(r *models.Room) {
		r.Users[e.UserID].Connected = false
	})
	return nil
}

func (s *Store) applyVoteSubmitted(e events.VoteSubmitted) error {
	if err := s.requireUser(e.EventName(), e.UserID); err != nil {
		return err
	}
	if e.UserID == s.selfID {
		return &SkipError{Event: e.EventName(), UserID: e.UserID, Err: ErrSelfEcho}
	}
	// Revealed rooms never hold a concealed vote.
	if s.room.Phase == models.PhaseRevealed {
		return &SkipError{Event: e.EventName(), UserID: e.UserID, Err: ErrWrongPhase}
	}
	s.mutate(func(r *models.Room) {
		r.Users[e.UserID].Vote = models.ConcealedVote()
	})
	return nil
}

func (s *Store) applyVoteCleared(e events.VoteCleared) error {
	if err := s.requireUser(e.EventName(), e.UserID); err != nil {
		return err
	}
	s.mutate(func(r *models.Room) {
		r.Users[e.UserID].Vote = models.NoVote()
	})
	return nil
}

func (s *Store) applyVotesRevealed(e events.VotesRevealed) error {
	if s.room == nil {
		return &SkipError{Event: e.EventName(), Err: ErrNoSnapshot}
	}

	s.mutate(func(r *models.Room) {
		r.Phase = models.PhaseRevealed

		recorded := make(map[string]string, len(e.Votes))
		for id, value := range e.Votes {
			u := r.Users[id]
			if u == nil || protocol.ValidateVote(value) != nil {
				continue
			}
			u.Vote = models.RevealedVote(value)
			recorded[id] = value
		}

		// The authority keeps no record of a round nobody voted in.
		if len(recorded) == 0 {
			return
		}
		// Duplicate deliveries of the same reveal must not grow history.
		if last, ok := r.LastRecord(); ok && last.Round == r.Round {
			return
		}
		r.History = append(r.History, models.RoundRecord{
			Round:      r.Round,
			Votes:      recorded,
			RevealedAt: s.clock.Now(),
		})
	})
	return nil
}

func (s *Store) applyRoundReset(e events.RoundReset) error {
	if s.room == nil {
		return &SkipError{Event: e.EventName(), Err: ErrNoSnapshot}
	}
	s.mutate(func(r *models.Room) {
		r.Phase = models.PhaseVoting
		r.Round = e.Round
		for _, u := range r.Users {
			u.Vote = models.NoVote()
		}
	})
	return nil
}

func (s *Store) applyUserKicked(e events.UserKicked) error {
	if s.selfID != "" && e.UserID == s.selfID {
		s.Reset()
		s.pendingError = RemovedMessage
		return ErrRemovedFromRoom
	}
	if err := s.requireUser(e.EventName(), e.UserID); err != nil {
		return err
	}
	s.mutate(func(r *models.Room) {
		delete(r.Users, e.UserID)
	})
	return nil
}

func (s *Store) applyProtocolError(e events.ProtocolError) error {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = "Unknown error"
	}
	s.pendingError = msg
	return nil
}

func (s *Store) requireUser(event, userID string) error {
	if s.room == nil {
		return &SkipError{Event: event, UserID: userID, Err: ErrNoSnapshot}
	}
	if s.room.User(userID) == nil {
		return &SkipError{Event: event, UserID: userID, Err: ErrUnknownUser}
	}
	return nil
}

// visibleVote enforces what a vote may look like in the given phase. While voting,
// only our own card may be concrete. Once revealed, nothing stays concealed.
func (s *Store) visibleVote(phase models.Phase, userID string, v models.Vote) models.Vote {
	switch {
	case phase == models.PhaseVoting && userID != s.selfID && v.Kind() == models.VoteRevealed:
		return models.ConcealedVote()
	case phase == models.PhaseRevealed && v.Kind() == models.VoteConcealed:
		return models.NoVote()
	default:
		return v
	}
}
