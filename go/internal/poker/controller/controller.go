package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/events"
	"github.com/mcdev12/pokersync/go/internal/poker/protocol"
	"github.com/mcdev12/pokersync/go/internal/poker/roomstate"
	"github.com/rs/zerolog/log"
)

var (
	ErrNameRequired     = errors.New("user name is required")
	ErrRoomCodeRequired = errors.New("room code is required")
	ErrNotInRoom        = errors.New("not in a room")
	ErrUserIDRequired   = errors.New("user id is required")
	ErrStopped          = errors.New("controller stopped")
	ErrVotingClosed     = errors.New("votes are already revealed")

	ErrInvalidVote  = protocol.ErrInvalidVote
	ErrNotConnected = connection.ErrNotConnected
)

// ConnectFailedMessage is surfaced when the transport gives up.
const ConnectFailedMessage = "Failed to connect to server"

// Transport is the part of the connection manager the controller needs.
type Transport interface {
	Signals() <-chan connection.Signal
	Send(data []byte) error
}

// Config holds controller settings
type Config struct {
	// Deck restricts votes to these card values. Empty allows any value.
	Deck      []string
	InboxSize int
}

func DefaultConfig() Config {
	return Config{
		Deck:      models.DefaultDeck,
		InboxSize: 64,
	}
}

// Controller serializes every mutation of the room state on one goroutine.
// Transport signals and caller requests both drain into Run; readers only
// ever see published Views.
type Controller struct {
	transport Transport
	store     *roomstate.Store
	deck      map[string]struct{}
	inbox     chan msg
	done      chan struct{}

	view atomic.Pointer[View]

	subsMu  sync.Mutex
	subs    map[int]chan *View
	nextSub int

	// Owned by the Run goroutine.
	intent    *events.JoinRoom
	connState connection.State
	version   uint64
}

func New(transport Transport, config Config, clock clockwork.Clock) *Controller {
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultConfig().InboxSize
	}

	var deck map[string]struct{}
	if len(config.Deck) > 0 {
		deck = make(map[string]struct{}, len(config.Deck))
		for _, card := range config.Deck {
			deck[card] = struct{}{}
		}
	}

	c := &Controller{
		transport: transport,
		store:     roomstate.NewStore(clock),
		deck:      deck,
		inbox:     make(chan msg, config.InboxSize),
		done:      make(chan struct{}),
		subs:      make(map[int]chan *View),
		connState: connection.Disconnected,
	}
	c.view.Store(&View{Connection: connection.Disconnected})
	return c
}

// View returns the latest published view. It never returns nil.
func (c *Controller) View() *View {
	return c.view.Load()
}

// Subscribe returns a channel that always yields the newest view. A slow
// reader skips intermediate views rather than blocking the dispatcher.
func (c *Controller) Subscribe() (<-chan *View, func()) {
	ch := make(chan *View, 1)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.view.Load()
	c.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			close(ch)
			c.subsMu.Unlock()
		})
	}
	return ch, cancel
}

// Run is the dispatcher loop. It returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	signals := c.transport.Signals()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room controller shutting down")
			return ctx.Err()

		case sig, ok := <-signals:
			if !ok {
				signals = nil
				c.connState = connection.Disconnected
			} else {
				c.handleSignal(sig)
			}

		case m := <-c.inbox:
			c.handleMsg(m)
		}
		c.publish()
	}
}

// Join asks to join a room. Before the first connection it is queued.
func (c *Controller) Join(ctx context.Context, roomCode, userName string) error {
	reply := make(chan error, 1)
	return c.request(ctx, joinMsg{RoomCode: roomCode, UserName: userName, Reply: reply}, reply)
}

// Leave leaves the room and drops all local room state at once.
func (c *Controller) Leave(ctx context.Context) error {
	reply := make(chan error, 1)
	return c.request(ctx, leaveMsg{Reply: reply}, reply)
}

// SubmitVote shows the vote locally right away, then sends it.
func (c *Controller) SubmitVote(ctx context.Context, vote string) error {
	return c.roomCommand(ctx, events.SubmitVote{Vote: vote})
}

func (c *Controller) ClearVote(ctx context.Context) error {
	return c.roomCommand(ctx, events.ClearVote{})
}

func (c *Controller) RevealVotes(ctx context.Context) error {
	return c.roomCommand(ctx, events.RevealVotes{})
}

func (c *Controller) ResetRound(ctx context.Context) error {
	return c.roomCommand(ctx, events.ResetRound{})
}

func (c *Controller) KickUser(ctx context.Context, userID string) error {
	return c.roomCommand(ctx, events.KickUser{UserID: userID})
}

func (c *Controller) ClearError(ctx context.Context) error {
	reply := make(chan error, 1)
	return c.request(ctx, clearErrorMsg{Reply: reply}, reply)
}

func (c *Controller) roomCommand(ctx context.Context, cmd events.Command) error {
	reply := make(chan error, 1)
	return c.request(ctx, roomCommandMsg{Command: cmd, Reply: reply}, reply)
}

func (c *Controller) request(ctx context.Context, m msg, reply <-chan error) error {
	select {
	case c.inbox <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// handleMsg publishes before replying, so a caller sees its own change as
// soon as the call returns.
func (c *Controller) handleMsg(m msg) {
	switch m := m.(type) {
	case joinMsg:
		err := c.handleJoin(m.RoomCode, m.UserName)
		c.publish()
		m.Reply <- err
	case leaveMsg:
		err := c.handleLeave()
		c.publish()
		m.Reply <- err
	case roomCommandMsg:
		err := c.handleRoomCommand(m.Command)
		c.publish()
		m.Reply <- err
	case clearErrorMsg:
		c.store.ClearError()
		c.publish()
		m.Reply <- nil
	}
}

func (c *Controller) handleJoin(roomCode, userName string) error {
	name := strings.TrimSpace(userName)
	if name == "" {
		return ErrNameRequired
	}
	code := models.NormalizeRoomCode(roomCode)
	if code == "" {
		return ErrRoomCodeRequired
	}

	if c.intent != nil {
		log.Info().Str("room_code", c.intent.RoomCode).Msg("leaving current room before joining another")
		if c.connState == connection.Connected {
			if err := c.send(events.LeaveRoom{}); err != nil {
				log.Warn().Err(err).Msg("failed to send leave_room")
			}
		}
		c.store.Reset()
	}

	c.intent = &events.JoinRoom{RoomCode: code, UserName: name}
	c.store.ClearError()

	if c.connState != connection.Connected {
		log.Info().Str("room_code", code).Msg("not connected yet, join queued")
		return nil
	}
	return c.send(*c.intent)
}

func (c *Controller) handleLeave() error {
	if c.intent == nil {
		return nil
	}

	log.Info().Str("room_code", c.intent.RoomCode).Msg("leaving room")
	if c.connState == connection.Connected {
		if err := c.send(events.LeaveRoom{}); err != nil {
			log.Warn().Err(err).Msg("failed to send leave_room")
		}
	}
	c.intent = nil
	c.store.Reset()
	return nil
}

func (c *Controller) handleRoomCommand(cmd events.Command) error {
	if c.intent == nil {
		return ErrNotInRoom
	}
	if c.connState != connection.Connected {
		return ErrNotConnected
	}
	if c.store.SelfID() == "" || c.store.Snapshot() == nil {
		return ErrNotInRoom
	}

	switch cmd := cmd.(type) {
	case events.SubmitVote:
		if err := c.validateVote(cmd.Vote); err != nil {
			return err
		}
		if c.store.Snapshot().Phase == models.PhaseRevealed {
			return ErrVotingClosed
		}
		if err := c.store.SetOwnVote(cmd.Vote); err != nil {
			return fmt.Errorf("%w: %v", ErrNotInRoom, err)
		}
	case events.ClearVote:
		if c.store.Snapshot().Phase == models.PhaseRevealed {
			return ErrVotingClosed
		}
	case events.KickUser:
		if cmd.UserID == "" {
			return ErrUserIDRequired
		}
	}
	return c.send(cmd)
}

func (c *Controller) validateVote(vote string) error {
	if err := protocol.ValidateVote(vote); err != nil {
		return err
	}
	if c.deck != nil {
		if _, ok := c.deck[vote]; !ok {
			return fmt.Errorf("%w: %q is not in the deck", ErrInvalidVote, vote)
		}
	}
	return nil
}

func (c *Controller) send(cmd events.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := c.transport.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.CommandName(), err)
	}
	log.Debug().Str("command", cmd.CommandName()).Msg("command sent")
	return nil
}

func (c *Controller) handleSignal(sig connection.Signal) {
	switch sig := sig.(type) {
	case connection.Message:
		c.handleFrame(sig.Data)

	case connection.StateChanged:
		c.connState = sig.State
		if sig.State != connection.Connected {
			return
		}
		if sig.Reconnect {
			// Whatever we held may be stale; the re-join brings a fresh snapshot.
			c.store.Reset()
		}
		if c.intent != nil {
			log.Info().
				Str("room_code", c.intent.RoomCode).
				Bool("reconnect", sig.Reconnect).
				Msg("joining room")
			if err := c.send(*c.intent); err != nil {
				log.Error().Err(err).Msg("failed to send join_room")
			}
		}

	case connection.Failed:
		log.Error().Err(sig.Err).Msg("connection to authority failed")
		c.connState = connection.Disconnected
		c.store.SetError(ConnectFailedMessage)
	}
}

func (c *Controller) handleFrame(data []byte) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}

	if c.intent == nil {
		if e, ok := ev.(events.ProtocolError); ok {
			log.Warn().
				Str("reason", e.Message).
				Str("code", e.Code).
				Msg("authority error outside a session")
			return
		}
		log.Debug().Str("event", ev.EventName()).Msg("no active session, dropping event")
		return
	}

	switch e := ev.(type) {
	case events.RoomJoined:
		if !strings.EqualFold(e.RoomCode, c.intent.RoomCode) {
			c.logSkip(ev, &roomstate.SkipError{Event: ev.EventName(), UserID: e.UserID, Err: roomstate.ErrStaleJoin})
			return
		}
	case events.ProtocolError:
		// Before room_joined the only thing in flight is our join.
		if c.store.SelfID() == "" {
			log.Warn().Str("room_code", c.intent.RoomCode).Str("reason", e.Message).Msg("join rejected")
			c.intent = nil
		}
	}

	err = c.store.Apply(ev)
	switch {
	case err == nil:
	case errors.Is(err, roomstate.ErrRemovedFromRoom):
		log.Info().Str("room_code", c.intent.RoomCode).Msg("removed from room by facilitator")
		c.intent = nil
	case roomstate.IsSkip(err):
		c.logSkip(ev, err)
	default:
		log.Error().Err(err).Str("event", ev.EventName()).Msg("failed to apply event")
	}
}

func (c *Controller) logSkip(ev events.Event, err error) {
	log.Debug().Err(err).Str("event", ev.EventName()).Msg("event skipped")
}

// publish stores a new View if anything visible changed and wakes subscribers.
func (c *Controller) publish() {
	next := &View{
		Room:       c.store.Snapshot(),
		SelfID:     c.store.SelfID(),
		Error:      c.store.PendingError(),
		Connection: c.connState,
		Joined:     c.intent != nil,
	}
	if c.intent != nil {
		next.RoomCode = c.intent.RoomCode
	}

	prev := c.view.Load()
	if prev.sameAs(next) {
		return
	}
	c.version++
	next.Version = c.version
	c.view.Store(next)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
