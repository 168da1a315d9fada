package models

import (
	"sort"
	"strconv"
)

// Cards every deck understands that carry no numeric weight.
const (
	CardUnsure = "?"
	CardCoffee = "☕"
)

// DefaultDeck is the card set the authority accepts out of the box.
var DefaultDeck = []string{"0", ".5", "1", "2", "3", "5", "8", "13", CardUnsure, CardCoffee}

// Tally summarizes the visible votes of a room.
type Tally struct {
	Round        int
	Votes        map[string]string // user id -> value
	Distribution map[string]int
	Average      *float64 // nil when no numeric votes were cast
	NumericCount int
}

// Values returns the distinct card values in ascending numeric order, non-numeric last.
func (t Tally) Values() []string {
	values := make([]string, 0, len(t.Distribution))
	for v := range t.Distribution {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		a, aerr := strconv.ParseFloat(values[i], 64)
		b, berr := strconv.ParseFloat(values[j], 64)
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return values[i] < values[j]
		}
	})
	return values
}

// TallyRoom counts every concrete vote in the room. Concealed votes are skipped,
// so during voting only the local user's own card is counted.
func TallyRoom(room *Room) Tally {
	t := Tally{
		Votes:        make(map[string]string),
		Distribution: make(map[string]int),
	}
	if room == nil {
		return t
	}
	t.Round = room.Round

	for id, u := range room.Users {
		if v, ok := u.Vote.Value(); ok {
			t.Votes[id] = v
		}
	}
	return tallyVotes(t)
}

// TallyRecord summarizes a history entry.
func TallyRecord(rec RoundRecord) Tally {
	t := Tally{
		Round:        rec.Round,
		Votes:        make(map[string]string, len(rec.Votes)),
		Distribution: make(map[string]int),
	}
	for id, v := range rec.Votes {
		t.Votes[id] = v
	}
	return tallyVotes(t)
}

func tallyVotes(t Tally) Tally {
	var sum float64
	for _, v := range t.Votes {
		t.Distribution[v]++
		if v == CardUnsure || v == CardCoffee {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		sum += n
		t.NumericCount++
	}
	if t.NumericCount > 0 {
		avg := sum / float64(t.NumericCount)
		t.Average = &avg
	}
	return t
}
