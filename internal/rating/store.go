package rating

import "context"

// Change is one peer's post-match rating together with the score that produced it.
type Change struct {
	Peer   string
	Rating float64
	Score  float64
}

// Store persists ratings keyed by peer endpoint.
type Store interface {
	// Ratings returns stored ratings; absent peers are omitted.
	Ratings(ctx context.Context, peers ...string) (map[string]float64, error)
	// Apply writes all changes as a single read-modify-write.
	Apply(ctx context.Context, changes []Change) error
}

// Lookup reads the prior pair for white and black, defaulting unseen peers.
func Lookup(ctx context.Context, s Store, white, black string) (Pair, error) {
	ratings, err := s.Ratings(ctx, white, black)
	if err != nil {
		return Pair{}, err
	}
	return Pair{White: valueOr(ratings, white), Black: valueOr(ratings, black)}, nil
}

// Changes builds the store changes for a finished match.
func Changes(white, black string, next, scores Pair) []Change {
	return []Change{
		{Peer: white, Rating: next.White, Score: scores.White},
		{Peer: black, Rating: next.Black, Score: scores.Black},
	}
}

func valueOr(m map[string]float64, key string) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return DefaultRating
}
