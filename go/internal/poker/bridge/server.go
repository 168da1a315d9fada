// Package bridge exposes the local room session over HTTP so a browser UI can
// render it and issue commands.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RoomService is the facade surface the bridge drives.
type RoomService interface {
	View() *controller.View
	Results() models.Tally
	History() []models.Tally

	CreateRoom(ctx context.Context, userName string) (string, error)
	Join(ctx context.Context, roomCode, userName string) error
	Leave(ctx context.Context) error
	SubmitVote(ctx context.Context, vote string) error
	ClearVote(ctx context.Context) error
	RevealVotes(ctx context.Context) error
	ResetRound(ctx context.Context) error
	KickUser(ctx context.Context, userID string) error
	ClearError(ctx context.Context) error
}

type Config struct {
	Port           string
	AllowedOrigins []string
}

// NewServer builds the bridge server. The caller owns ListenAndServe and Shutdown.
func NewServer(svc RoomService, cfg Config) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(NewHandler(svc, cfg.AllowedOrigins), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewHandler returns the routed, CORS-wrapped bridge handler.
func NewHandler(svc RoomService, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	h := &handlers{svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/room", h.room)
	mux.HandleFunc("GET /api/room/results", h.results)
	mux.HandleFunc("POST /api/room/join", h.join)
	mux.HandleFunc("POST /api/room/leave", h.command(svc.Leave))
	mux.HandleFunc("POST /api/room/vote", h.vote)
	mux.HandleFunc("POST /api/room/clear-vote", h.command(svc.ClearVote))
	mux.HandleFunc("POST /api/room/reveal", h.command(svc.RevealVotes))
	mux.HandleFunc("POST /api/room/reset", h.command(svc.ResetRound))
	mux.HandleFunc("POST /api/room/kick", h.kick)
	mux.HandleFunc("DELETE /api/room/error", h.command(svc.ClearError))

	return withLogging(c.Handler(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("bridge request")
	})
}
