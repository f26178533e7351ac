package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies one of the two fixed match participants.
type Role string

const (
	White Role = "White"
	Black Role = "Black"
)

// Roles lists the participants in turn order.
var Roles = []Role{White, Black}

// ReferenceRole is the perspective every stored evaluation is expressed in.
const ReferenceRole = White

func (r Role) Opponent() Role {
	if r == White {
		return Black
	}
	return White
}

func (r Role) Valid() bool { return r == White || r == Black }

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Seating maps roles onto the rules engine's player indices.
type Seating struct {
	White int
	Black int
}

func (s Seating) Index(r Role) int {
	if r == White {
		return s.White
	}
	return s.Black
}

func (s Seating) RoleOf(player int) (Role, bool) {
	switch player {
	case s.White:
		return White, true
	case s.Black:
		return Black, true
	default:
		return "", false
	}
}

// MatchRecord is the persisted summary of a finished match.
type MatchRecord struct {
	ID                string
	WhitePeer         string
	BlackPeer         string
	Result            string
	ResultMethod      string
	MovesUCI          []string
	MovesSAN          []string
	PGN               string
	Plies             int
	IllegalAttempts   int
	WhiteRatingBefore float64
	WhiteRatingAfter  float64
	BlackRatingBefore float64
	BlackRatingAfter  float64
	StartedAt         time.Time
	EndedAt           time.Time
	Duration          time.Duration
}

// PeerRating is a single row of the cross-match rating store.
type PeerRating struct {
	Peer        string
	Rating      float64
	GamesPlayed int
	Wins        int
	Losses      int
	Draws       int
	UpdatedAt   time.Time
	CreatedAt   time.Time
}
