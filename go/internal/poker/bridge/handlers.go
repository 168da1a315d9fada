package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"github.com/mcdev12/pokersync/go/internal/poker/protocol"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	svc RoomService
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type roomResponse struct {
	Connection    string         `json:"connection"`
	InRoom        bool           `json:"in_room"`
	RoomCode      string         `json:"room_code,omitempty"`
	SelfID        string         `json:"self_id,omitempty"`
	IsFacilitator bool           `json:"is_facilitator"`
	Error         string         `json:"error,omitempty"`
	Room          *protocol.Room `json:"room"`
}

type tallyResponse struct {
	Round        int               `json:"round"`
	Votes        map[string]string `json:"votes"`
	Distribution map[string]int    `json:"distribution"`
	Values       []string          `json:"values"`
	Average      *float64          `json:"average"`
	NumericCount int               `json:"numeric_count"`
}

type resultsResponse struct {
	Current tallyResponse   `json:"current"`
	History []tallyResponse `json:"history"`
}

type joinRequest struct {
	RoomCode string `json:"room_code"`
	UserName string `json:"user_name"`
}

type voteRequest struct {
	Vote string `json:"vote"`
}

type kickRequest struct {
	UserID string `json:"user_id"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Warn().Err(err).Msg("failed to write health check response")
	}
}

func (h *handlers) room(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewResponse(h.svc.View()))
}

func (h *handlers) results(w http.ResponseWriter, r *http.Request) {
	if !h.svc.View().InRoom() {
		writeError(w, controller.ErrNotInRoom)
		return
	}
	resp := resultsResponse{
		Current: toTallyResponse(h.svc.Results()),
		History: []tallyResponse{},
	}
	for _, t := range h.svc.History() {
		resp.History = append(resp.History, toTallyResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// join creates a fresh room when no code is given.
func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	if req.RoomCode == "" {
		_, err = h.svc.CreateRoom(r.Context(), req.UserName)
	} else {
		err = h.svc.Join(r.Context(), req.RoomCode, req.UserName)
	}
	h.reply(w, err)
}

func (h *handlers) vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !decode(w, r, &req) {
		return
	}
	h.reply(w, h.svc.SubmitVote(r.Context(), req.Vote))
}

func (h *handlers) kick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if !decode(w, r, &req) {
		return
	}
	h.reply(w, h.svc.KickUser(r.Context(), req.UserID))
}

func (h *handlers) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, fn(r.Context()))
	}
}

// reply answers a command with the view it produced, which already holds
// the optimistic change.
func (h *handlers) reply(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse(h.svc.View()))
}

func viewResponse(v *controller.View) roomResponse {
	if v == nil {
		return roomResponse{Connection: connection.Disconnected.String()}
	}
	resp := roomResponse{
		Connection:    v.Connection.String(),
		InRoom:        v.InRoom(),
		RoomCode:      v.RoomCode,
		SelfID:        v.SelfID,
		IsFacilitator: v.IsFacilitator(),
		Error:         v.Error,
	}
	if v.Room != nil {
		room := protocol.RoomToWire(v.Room)
		resp.Room = &room
		resp.RoomCode = v.Room.Code
	}
	return resp
}

func toTallyResponse(t models.Tally) tallyResponse {
	return tallyResponse{
		Round:        t.Round,
		Votes:        t.Votes,
		Distribution: t.Distribution,
		Values:       t.Values(),
		Average:      t.Average,
		NumericCount: t.NumericCount,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrNotInRoom),
		errors.Is(err, controller.ErrVotingClosed):
		return http.StatusConflict
	case errors.Is(err, controller.ErrInvalidVote),
		errors.Is(err, controller.ErrNameRequired),
		errors.Is(err, controller.ErrRoomCodeRequired),
		errors.Is(err, controller.ErrUserIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNotConnected),
		errors.Is(err, connection.ErrSendBufferFull),
		errors.Is(err, controller.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Message: "invalid JSON body",
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("bridge command failed")
	}
	writeJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
