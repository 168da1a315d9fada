package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	view  *controller.View
	err   error
	calls []string
}

func (f *fakeService) View() *controller.View { return f.view }

func (f *fakeService) Results() models.Tally { return models.TallyRoom(f.view.Room) }

func (f *fakeService) History() []models.Tally {
	var out []models.Tally
	for _, rec := range f.view.Room.History {
		out = append(out, models.TallyRecord(rec))
	}
	return out
}

func (f *fakeService) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeService) CreateRoom(ctx context.Context, userName string) (string, error) {
	return "NEW123", f.record("create " + userName)
}

func (f *fakeService) Join(ctx context.Context, roomCode, userName string) error {
	return f.record("join " + roomCode + " " + userName)
}

func (f *fakeService) Leave(ctx context.Context) error       { return f.record("leave") }
func (f *fakeService) ClearVote(ctx context.Context) error   { return f.record("clear-vote") }
func (f *fakeService) RevealVotes(ctx context.Context) error { return f.record("reveal") }
func (f *fakeService) ResetRound(ctx context.Context) error  { return f.record("reset") }
func (f *fakeService) ClearError(ctx context.Context) error  { return f.record("clear-error") }

func (f *fakeService) SubmitVote(ctx context.Context, vote string) error {
	return f.record("vote " + vote)
}

func (f *fakeService) KickUser(ctx context.Context, userID string) error {
	return f.record("kick " + userID)
}

func votingView() *controller.View {
	return &controller.View{
		SelfID:     "u1",
		RoomCode:   "ABCD12",
		Joined:     true,
		Connection: connection.Connected,
		Room: &models.Room{
			Code:  "ABCD12",
			Phase: models.PhaseVoting,
			Round: 1,
			Users: map[string]*models.User{
				"u1": {ID: "u1", Name: "Alice", Connected: true, IsFacilitator: true, Vote: models.RevealedVote("5")},
				"u2": {ID: "u2", Name: "Bob", Connected: true, Vote: models.ConcealedVote()},
				"u3": {ID: "u3", Name: "Carol", Connected: false},
			},
			History: []models.RoundRecord{},
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeService{view: &controller.View{}}, nil)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGetRoomRendersWireVotes(t *testing.T) {
	h := NewHandler(&fakeService{view: votingView()}, nil)

	rec := do(t, h, http.MethodGet, "/api/room", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Connection    string `json:"connection"`
		InRoom        bool   `json:"in_room"`
		RoomCode      string `json:"room_code"`
		IsFacilitator bool   `json:"is_facilitator"`
		Room          struct {
			State string `json:"state"`
			Users map[string]struct {
				CurrentVote *string `json:"current_vote"`
			} `json:"users"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "connected", body.Connection)
	assert.True(t, body.InRoom)
	assert.True(t, body.IsFacilitator)
	assert.Equal(t, "ABCD12", body.RoomCode)
	assert.Equal(t, "voting", body.Room.State)
	require.NotNil(t, body.Room.Users["u1"].CurrentVote)
	assert.Equal(t, "5", *body.Room.Users["u1"].CurrentVote)
	require.NotNil(t, body.Room.Users["u2"].CurrentVote)
	assert.Equal(t, "hidden", *body.Room.Users["u2"].CurrentVote)
	assert.Nil(t, body.Room.Users["u3"].CurrentVote)
}

func TestGetRoomWithoutSession(t *testing.T) {
	h := NewHandler(&fakeService{view: &controller.View{Connection: connection.Connecting}}, nil)

	rec := do(t, h, http.MethodGet, "/api/room", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connection":"connecting","in_room":false,"is_facilitator":false,"room":null}`, rec.Body.String())
}

func TestCommandsRouteToService(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		call   string
	}{
		{http.MethodPost, "/api/room/join", `{"room_code":"ABCD12","user_name":"Alice"}`, "join ABCD12 Alice"},
		{http.MethodPost, "/api/room/join", `{"user_name":"Alice"}`, "create Alice"},
		{http.MethodPost, "/api/room/leave", "", "leave"},
		{http.MethodPost, "/api/room/vote", `{"vote":"8"}`, "vote 8"},
		{http.MethodPost, "/api/room/clear-vote", "", "clear-vote"},
		{http.MethodPost, "/api/room/reveal", "", "reveal"},
		{http.MethodPost, "/api/room/reset", "", "reset"},
		{http.MethodPost, "/api/room/kick", `{"user_id":"u2"}`, "kick u2"},
		{http.MethodDelete, "/api/room/error", "", "clear-error"},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			svc := &fakeService{view: votingView()}
			rec := do(t, NewHandler(svc, nil), tt.method, tt.path, tt.body)

			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []string{tt.call}, svc.calls)
			assert.Contains(t, rec.Body.String(), `"room_code":"ABCD12"`)
		})
	}
}

func TestCommandErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{controller.ErrNotInRoom, http.StatusConflict},
		{controller.ErrVotingClosed, http.StatusConflict},
		{controller.ErrInvalidVote, http.StatusBadRequest},
		{controller.ErrNameRequired, http.StatusBadRequest},
		{controller.ErrUserIDRequired, http.StatusBadRequest},
		{controller.ErrNotConnected, http.StatusServiceUnavailable},
		{fmt.Errorf("send: %w", connection.ErrSendBufferFull), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &fakeService{view: votingView(), err: tt.err}
			rec := do(t, NewHandler(svc, nil), http.MethodPost, "/api/room/vote", `{"vote":"5"}`)

			assert.Equal(t, tt.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Message)
		})
	}
}

func TestInvalidBody(t *testing.T) {
	svc := &fakeService{view: votingView()}
	rec := do(t, NewHandler(svc, nil), http.MethodPost, "/api/room/vote", `{"vote":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestWrongMethod(t *testing.T) {
	rec := do(t, NewHandler(&fakeService{view: votingView()}, nil), http.MethodGet, "/api/room/reveal", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResults(t *testing.T) {
	view := votingView()
	view.Room.Phase = models.PhaseRevealed
	view.Room.Users["u2"].Vote = models.RevealedVote("8")
	view.Room.Users["u3"].Vote = models.RevealedVote("?")
	view.Room.History = []models.RoundRecord{
		{Round: 1, Votes: map[string]string{"u1": "5", "u2": "8", "u3": "?"}},
	}

	rec := do(t, NewHandler(&fakeService{view: view}, nil), http.MethodGet, "/api/room/results", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body resultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Current.Average)
	assert.InDelta(t, 6.5, *body.Current.Average, 0.0001)
	assert.Equal(t, 2, body.Current.NumericCount)
	assert.Equal(t, []string{"5", "8", "?"}, body.Current.Values)
	require.Len(t, body.History, 1)
	assert.Equal(t, 1, body.History[0].Round)
}

func TestResultsRequireRoom(t *testing.T) {
	rec := do(t, NewHandler(&fakeService{view: &controller.View{}}, nil), http.MethodGet, "/api/room/results", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(&fakeService{view: votingView()}, []string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodOptions, "/api/room/vote", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewServerAddr(t *testing.T) {
	srv := NewServer(&fakeService{view: votingView()}, Config{Port: "9090"})
	assert.Equal(t, ":9090", srv.Addr)
	assert.NotNil(t, srv.Handler)
}
