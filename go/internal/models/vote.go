package models

// VoteKind identifies which variant a Vote holds.
type VoteKind int

const (
	VoteNone VoteKind = iota
	VoteConcealed
	VoteRevealed
)

func (k VoteKind) String() string {
	switch k {
	case VoteNone:
		return "none"
	case VoteConcealed:
		return "concealed"
	case VoteRevealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// Vote is a participant's estimate for the current round.
// A concealed vote signals "has voted" without carrying a value, so there is
// no way to mistake the placeholder for a real card.
type Vote struct {
	kind  VoteKind
	value string
}

// NoVote is the zero Vote.
func NoVote() Vote { return Vote{} }

// ConcealedVote marks a vote that was cast but whose value is not visible.
func ConcealedVote() Vote { return Vote{kind: VoteConcealed} }

// RevealedVote carries a concrete card value.
func RevealedVote(value string) Vote { return Vote{kind: VoteRevealed, value: value} }

func (v Vote) Kind() VoteKind { return v.kind }

// Value returns the concrete card value, if any.
func (v Vote) Value() (string, bool) {
	if v.kind != VoteRevealed {
		return "", false
	}
	return v.value, true
}

// IsCast reports whether the user has voted this round, concealed or not.
func (v Vote) IsCast() bool { return v.kind != VoteNone }

func (v Vote) String() string {
	switch v.kind {
	case VoteConcealed:
		return "concealed"
	case VoteRevealed:
		return v.value
	default:
		return "none"
	}
}
