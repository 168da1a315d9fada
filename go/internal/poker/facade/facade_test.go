package facade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"github.com/mcdev12/pokersync/go/internal/poker/events"
	"github.com/mcdev12/pokersync/go/internal/poker/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authority is a scripted stand-in for the room server. The test decides
// every event it sends.
type authority struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	commands chan events.Command
}

func newAuthority(t *testing.T) *authority {
	t.Helper()
	a := &authority{
		conns:    make(chan *websocket.Conn, 4),
		commands: make(chan events.Command, 32),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd, err := protocol.DecodeCommand(data)
			if err != nil {
				continue
			}
			a.commands <- cmd
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *authority) url() string {
	return "ws" + strings.TrimPrefix(a.srv.URL, "http")
}

func (a *authority) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-a.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func (a *authority) expect(t *testing.T) events.Command {
	t.Helper()
	select {
	case cmd := <-a.commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return nil
	}
}

func send(t *testing.T, conn *websocket.Conn, ev events.Event) {
	t.Helper()
	data, err := protocol.EncodeEvent(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func sendRaw(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func startClient(t *testing.T, a *authority) *Facade {
	t.Helper()
	cfg := connection.Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
	manager := connection.NewManager(connection.NewWebSocketDialer(connection.DefaultWebSocketConfig(a.url())), cfg, nil)
	ctrl := controller.New(manager, controller.DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go manager.Run(ctx)
	go ctrl.Run(ctx)
	return New(ctrl)
}

func waitFor(t *testing.T, f *Facade, msg string, cond func(v *controller.View) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(f.View()) }, 2*time.Second, 5*time.Millisecond, msg)
}

func voteValue(u *models.User) string {
	if u == nil {
		return ""
	}
	v, _ := u.Vote.Value()
	return v
}

func TestEstimationRound(t *testing.T) {
	a := newAuthority(t)
	room := startClient(t, a)
	ctx := context.Background()

	require.NoError(t, room.Join(ctx, "ABCD12", "Alice"))
	conn := a.accept(t)
	assert.Equal(t, events.JoinRoom{RoomCode: "ABCD12", UserName: "Alice"}, a.expect(t))

	send(t, conn, events.RoomJoined{RoomCode: "ABCD12", UserID: "u1", IsFacilitator: true})
	sendRaw(t, conn, `{"type":"room_state","data":{"room_code":"ABCD12","created_at":"2025-12-20T10:00:00Z","state":"voting","current_round":1,
		"users":{"u1":{"id":"u1","name":"Alice","connected":true,"is_facilitator":true,"current_vote":null,"joined_at":"2025-12-20T10:00:00Z"}},
		"vote_history":[]}}`)
	waitFor(t, room, "joined as facilitator", func(v *controller.View) bool { return v.InRoom() })
	assert.True(t, room.IsFacilitator())
	assert.Equal(t, "u1", room.SelfID())

	send(t, conn, events.UserJoined{User: &models.User{ID: "u2", Name: "Bob", Connected: true}})
	waitFor(t, room, "bob joined", func(v *controller.View) bool { return v.Room.User("u2") != nil })

	require.NoError(t, room.SubmitVote(ctx, "5"))
	assert.Equal(t, "5", voteValue(room.Self()))
	assert.Equal(t, events.SubmitVote{Vote: "5"}, a.expect(t))

	send(t, conn, events.VoteSubmitted{UserID: "u1"})
	sendRaw(t, conn, `{"type":"vote_submitted","data":{"user_id":"u2"}}`)
	waitFor(t, room, "bob voted", func(v *controller.View) bool {
		return v.Room.User("u2").Vote.Kind() == models.VoteConcealed
	})
	assert.Equal(t, "5", voteValue(room.Self()), "own echo leaves the local card alone")

	// A resync where the authority leaks raw values for others and hides ours.
	sendRaw(t, conn, `{"type":"room_state","data":{"room_code":"ABCD12","state":"voting","current_round":1,"users":{
		"u1":{"id":"u1","name":"Alice","connected":true,"is_facilitator":true,"current_vote":"hidden"},
		"u2":{"id":"u2","name":"Robert","connected":true,"is_facilitator":false,"current_vote":"8"}}}}`)
	waitFor(t, room, "resync applied", func(v *controller.View) bool {
		return v.Room.User("u2").Name == "Robert"
	})
	assert.Equal(t, models.VoteConcealed, room.Room().User("u2").Vote.Kind(), "leaked values stay hidden")
	assert.Equal(t, "5", voteValue(room.Self()))

	require.NoError(t, room.RevealVotes(ctx))
	assert.Equal(t, events.RevealVotes{}, a.expect(t))
	send(t, conn, events.VotesRevealed{Votes: map[string]string{"u1": "5", "u2": "8"}})
	waitFor(t, room, "revealed", func(v *controller.View) bool { return v.Room.Phase == models.PhaseRevealed })

	assert.Equal(t, "8", voteValue(room.Room().User("u2")))
	results := room.Results()
	require.NotNil(t, results.Average)
	assert.InDelta(t, 6.5, *results.Average, 0.0001)
	assert.Equal(t, 2, results.NumericCount)

	require.NoError(t, room.ResetRound(ctx))
	assert.Equal(t, events.ResetRound{}, a.expect(t))
	send(t, conn, events.RoundReset{Round: 2})
	waitFor(t, room, "next round", func(v *controller.View) bool { return v.Room.Round == 2 })

	r := room.Room()
	assert.Equal(t, models.PhaseVoting, r.Phase)
	for id, u := range r.Users {
		assert.Equal(t, models.VoteNone, u.Vote.Kind(), "user %s", id)
	}
	history := room.History()
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Round)
}

func TestKickedByFacilitator(t *testing.T) {
	a := newAuthority(t)
	room := startClient(t, a)
	ctx := context.Background()

	require.NoError(t, room.Join(ctx, "ABCD12", "Bob"))
	conn := a.accept(t)
	a.expect(t)
	send(t, conn, events.RoomJoined{RoomCode: "ABCD12", UserID: "u2"})
	send(t, conn, events.RoomSnapshot{Room: &models.Room{
		Code:  "ABCD12",
		Phase: models.PhaseVoting,
		Round: 1,
		Users: map[string]*models.User{
			"u1": {ID: "u1", Name: "Alice", Connected: true, IsFacilitator: true},
			"u2": {ID: "u2", Name: "Bob", Connected: true},
		},
	}})
	waitFor(t, room, "joined", func(v *controller.View) bool { return v.InRoom() })

	send(t, conn, events.UserKicked{UserID: "u2", KickedBy: "u1"})
	waitFor(t, room, "kicked", func(v *controller.View) bool { return !v.Joined })

	assert.Nil(t, room.Room())
	assert.Equal(t, "You have been removed from the room by the facilitator", room.Error())

	// Late traffic for the old room is ignored.
	send(t, conn, events.UserJoined{User: &models.User{ID: "u3", Name: "Carol"}})
	send(t, conn, events.ProtocolError{Message: "late"})
	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, room.Room())
	assert.NotEqual(t, "late", room.Error())
}

func TestReconnectRejoinsRoom(t *testing.T) {
	a := newAuthority(t)
	room := startClient(t, a)
	ctx := context.Background()

	require.NoError(t, room.Join(ctx, "ABCD12", "Alice"))
	first := a.accept(t)
	a.expect(t)
	send(t, first, events.RoomJoined{RoomCode: "ABCD12", UserID: "u1", IsFacilitator: true})
	send(t, first, events.RoomSnapshot{Room: &models.Room{
		Code:  "ABCD12",
		Phase: models.PhaseVoting,
		Round: 3,
		Users: map[string]*models.User{"u1": {ID: "u1", Name: "Alice", Connected: true, IsFacilitator: true}},
	}})
	waitFor(t, room, "joined", func(v *controller.View) bool { return v.InRoom() })

	first.Close()

	second := a.accept(t)
	assert.Equal(t, events.JoinRoom{RoomCode: "ABCD12", UserName: "Alice"}, a.expect(t))

	newID := uuid.NewString()
	send(t, second, events.RoomJoined{RoomCode: "ABCD12", UserID: newID, IsFacilitator: true})
	send(t, second, events.RoomSnapshot{Room: &models.Room{
		Code:  "ABCD12",
		Phase: models.PhaseVoting,
		Round: 3,
		Users: map[string]*models.User{newID: {ID: newID, Name: "Alice", Connected: true, IsFacilitator: true}},
	}})
	waitFor(t, room, "rejoined", func(v *controller.View) bool {
		return v.InRoom() && v.SelfID == newID && v.Connection == connection.Connected
	})

	require.NoError(t, room.SubmitVote(ctx, "3"))
	assert.Equal(t, events.SubmitVote{Vote: "3"}, a.expect(t))
}

func TestCreateRoomGeneratesCode(t *testing.T) {
	a := newAuthority(t)
	room := startClient(t, a)

	code, err := room.CreateRoom(context.Background(), "Alice")
	require.NoError(t, err)
	assert.True(t, models.ValidRoomCode(code))

	a.accept(t)
	assert.Equal(t, events.JoinRoom{RoomCode: code, UserName: "Alice"}, a.expect(t))
}

func TestReadsWithoutRoom(t *testing.T) {
	a := newAuthority(t)
	room := startClient(t, a)

	assert.Nil(t, room.Room())
	assert.Nil(t, room.Self())
	assert.False(t, room.IsFacilitator())
	assert.Nil(t, room.History())
	assert.Nil(t, room.Results().Average)
}
