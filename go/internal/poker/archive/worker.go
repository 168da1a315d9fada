package archive

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
	"github.com/rs/zerolog/log"
)

// Worker archives each revealed round it sees in the view stream. It runs
// off the dispatcher goroutine, so a slow database never delays events.
type Worker struct {
	recorder Recorder
	clock    clockwork.Clock
	recorded map[string]int // room code -> last archived round
}

func NewWorker(recorder Recorder, clock clockwork.Clock) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		recorder: recorder,
		clock:    clock,
		recorded: make(map[string]int),
	}
}

// Run consumes views until ctx is done or the channel is closed.
func (w *Worker) Run(ctx context.Context, views <-chan *controller.View) error {
	log.Info().Msg("round archive worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-views:
			if !ok {
				return nil
			}
			w.handle(ctx, v)
		}
	}
}

func (w *Worker) handle(ctx context.Context, v *controller.View) {
	room := v.Room
	if room == nil || room.Phase != models.PhaseRevealed {
		return
	}
	if last, ok := w.recorded[room.Code]; ok && last == room.Round {
		return
	}

	result := resultFor(room, w.clock)
	if err := w.recorder.RecordRound(ctx, result); err != nil {
		// Not marked, so the next view of this round retries.
		log.Error().Err(err).
			Str("room_code", room.Code).
			Int("round", room.Round).
			Msg("failed to archive round")
		return
	}
	w.recorded[room.Code] = room.Round
}

func resultFor(room *models.Room, clock clockwork.Clock) RoundResult {
	tally := models.TallyRoom(room)
	revealedAt := clock.Now()
	if rec, ok := room.LastRecord(); ok && rec.Round == room.Round && !rec.RevealedAt.IsZero() {
		revealedAt = rec.RevealedAt
	}
	return RoundResult{
		RoomCode:   room.Code,
		Round:      room.Round,
		Votes:      tally.Votes,
		Average:    tally.Average,
		RevealedAt: revealedAt,
	}
}
