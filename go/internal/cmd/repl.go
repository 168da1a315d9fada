package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mcdev12/pokersync/go/internal/models"
	"github.com/mcdev12/pokersync/go/internal/poker/controller"
)

const commandTimeout = 5 * time.Second

// session is what the input loop drives; facade.Facade satisfies it.
type session interface {
	View() *controller.View
	Results() models.Tally
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

const helpText = `commands:
  join <code|new> <name>   join a room, or create one
  vote <card>              cast a vote
  clear                    withdraw your vote
  reveal                   reveal all votes
  reset                    start the next round
  kick <user id>           remove a participant
  dismiss                  clear the error banner
  leave                    leave the room
  show                     print the room
  quit                     exit`

// runREPL reads commands line by line until quit, EOF or ctx is done.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, s session) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, `type "help" for commands`)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := execute(ctx, out, s, fields); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func execute(ctx context.Context, out io.Writer, s session, fields []string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(out, helpText)
		return nil
	case "show":
		printView(out, s.View(), s.Results())
		return nil
	case "join":
		if len(args) < 2 {
			return fmt.Errorf("usage: join <code|new> <name>")
		}
		name := strings.Join(args[1:], " ")
		if strings.EqualFold(args[0], "new") {
			code, err := s.CreateRoom(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created room %s\n", code)
			return nil
		}
		return s.Join(ctx, args[0], name)
	case "vote":
		if len(args) != 1 {
			return fmt.Errorf("usage: vote <card>")
		}
		return s.SubmitVote(ctx, args[0])
	case "clear":
		return s.ClearVote(ctx)
	case "reveal":
		return s.RevealVotes(ctx)
	case "reset":
		return s.ResetRound(ctx)
	case "kick":
		if len(args) != 1 {
			return fmt.Errorf("usage: kick <user id>")
		}
		return s.KickUser(ctx, args[0])
	case "dismiss":
		return s.ClearError(ctx)
	case "leave":
		return s.Leave(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printView(out io.Writer, v *controller.View, tally models.Tally) {
	if v == nil {
		fmt.Fprintln(out, "not started")
		return
	}
	fmt.Fprintf(out, "connection: %s\n", v.Connection)
	if v.Error != "" {
		fmt.Fprintf(out, "error: %s\n", v.Error)
	}
	if !v.InRoom() {
		if v.Joined {
			fmt.Fprintf(out, "joining %s...\n", v.RoomCode)
		} else {
			fmt.Fprintln(out, "not in a room")
		}
		return
	}

	room := v.Room
	fmt.Fprintf(out, "room %s  round %d  %s\n", room.Code, room.Round, room.Phase)

	ids := make([]string, 0, len(room.Users))
	for id := range room.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		u := room.Users[id]
		marker := " "
		if id == v.SelfID {
			marker = "*"
		}
		role := ""
		if u.IsFacilitator {
			role = " (facilitator)"
		}
		status := ""
		if !u.Connected {
			status = " [away]"
		}
		fmt.Fprintf(out, "%s %-10s %-16s %s%s%s\n", marker, id, u.Name, u.Vote, role, status)
	}

	if room.Phase == models.PhaseRevealed && tally.Average != nil {
		fmt.Fprintf(out, "average: %.2f over %d votes\n", *tally.Average, tally.NumericCount)
	}
}
