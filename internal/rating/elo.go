// Package rating implements the logistic expected-score rating update and the
// mapping from rules-engine returns to per-role match scores.
package rating

import (
	"fmt"
	"math"

	"github.com/park285/chessbench-go/internal/domain"
)

const (
	// K is the update sensitivity.
	K = 32.0
	// DefaultRating is assigned to peers without a stored rating.
	DefaultRating = 1000.0
)

// Expected returns A's expected score against B.
func Expected(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// Update returns A's new rating after scoring scoreA (0, 0.5 or 1) against B.
func Update(ratingA, ratingB, scoreA float64) float64 {
	return ratingA + K*(scoreA-Expected(ratingA, ratingB))
}

// Pair holds a value per role.
type Pair struct {
	White float64 `json:"White"`
	Black float64 `json:"Black"`
}

func (p Pair) Of(r domain.Role) float64 {
	if r == domain.White {
		return p.White
	}
	return p.Black
}

// UpdatePair updates both ratings from the same prior pair.
func UpdatePair(prior Pair, scores Pair) Pair {
	return Pair{
		White: Update(prior.White, prior.Black, scores.White),
		Black: Update(prior.Black, prior.White, scores.Black),
	}
}

// ScoreFromReturn maps a raw terminal return {-1, 0, 1} to {0, 0.5, 1}.
func ScoreFromReturn(v float64) (float64, error) {
	switch v {
	case -1:
		return 0, nil
	case 0:
		return 0.5, nil
	case 1:
		return 1, nil
	default:
		return 0, fmt.Errorf("unexpected terminal return %v", v)
	}
}

// Scores reorders engine-indexed returns into role-labelled scores.
func Scores(returns []float64, seats domain.Seating) (Pair, error) {
	wi, bi := seats.Index(domain.White), seats.Index(domain.Black)
	if wi < 0 || bi < 0 || wi >= len(returns) || bi >= len(returns) {
		return Pair{}, fmt.Errorf("returns %v do not cover seats %+v", returns, seats)
	}
	w, err := ScoreFromReturn(returns[wi])
	if err != nil {
		return Pair{}, err
	}
	b, err := ScoreFromReturn(returns[bi])
	if err != nil {
		return Pair{}, err
	}
	return Pair{White: w, Black: b}, nil
}
