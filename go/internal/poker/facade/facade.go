package facade

import (
	"context"
	"fmt"

	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/connection"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
)

// Facade is the read and command surface presentation code talks to.
// Every read derives from one published view, so values read together through
// View() are always consistent with each other.
type Facade struct {
	ctrl *controller.Controller
}

func New(ctrl *controller.Controller) *Facade {
	return &Facade{ctrl: ctrl}
}

// View returns the latest consistent snapshot of the session.
func (f *Facade) View() *controller.View { return f.ctrl.View() }

// Room returns the current room, or nil when not in one.
func (f *Facade) Room() *models.Room { return f.View().Room }

func (f *Facade) SelfID() string { return f.View().SelfID }

func (f *Facade) Self() *models.User { return f.View().Self() }

func (f *Facade) IsFacilitator() bool { return f.View().IsFacilitator() }

// Error returns the pending user-facing error message, or "".
func (f *Facade) Error() string { return f.View().Error }

func (f *Facade) Connection() connection.State { return f.View().Connection }

func (f *Facade) InRoom() bool { return f.View().InRoom() }

// Subscribe yields the newest view whenever something changes.
func (f *Facade) Subscribe() (<-chan *controller.View, func()) {
	return f.ctrl.Subscribe()
}

// Results tallies the current round. Concealed votes count as cast but
// contribute no value, so this is only meaningful once revealed.
func (f *Facade) Results() models.Tally {
	return models.TallyRoom(f.Room())
}

// History returns the tally of each completed round, oldest first.
func (f *Facade) History() []models.Tally {
	room := f.Room()
	if room == nil {
		return nil
	}
	tallies := make([]models.Tally, 0, len(room.History))
	for _, rec := range room.History {
		tallies = append(tallies, models.TallyRecord(rec))
	}
	return tallies
}

// CreateRoom joins a freshly generated room code. The authority creates rooms
// on first join.
func (f *Facade) CreateRoom(ctx context.Context, userName string) (string, error) {
	code, err := models.GenerateRoomCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	if err := f.ctrl.Join(ctx, code, userName); err != nil {
		return "", err
	}
	return code, nil
}

func (f *Facade) Join(ctx context.Context, roomCode, userName string) error {
	return f.ctrl.Join(ctx, roomCode, userName)
}

func (f *Facade) Leave(ctx context.Context) error { return f.ctrl.Leave(ctx) }

func (f *Facade) SubmitVote(ctx context.Context, vote string) error {
	return f.ctrl.SubmitVote(ctx, vote)
}

func (f *Facade) ClearVote(ctx context.Context) error { return f.ctrl.ClearVote(ctx) }

func (f *Facade) RevealVotes(ctx context.Context) error { return f.ctrl.RevealVotes(ctx) }

func (f *Facade) ResetRound(ctx context.Context) error { return f.ctrl.ResetRound(ctx) }

func (f *Facade) KickUser(ctx context.Context, userID string) error {
	return f.ctrl.KickUser(ctx, userID)
}

func (f *Facade) ClearError(ctx context.Context) error { return f.ctrl.ClearError(ctx) }
