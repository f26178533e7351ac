// Package store persists match artifacts, peer ratings and match records.
package store

import (
	"context"
	"errors"

	"github.com/park285/chessbench-go/internal/domain"
)

var ErrNotFound = errors.New("store: not found")

// Blobs stores named artifacts. Put overwrites.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Recorder keeps a summary row per finished match.
type Recorder interface {
	RecordMatch(ctx context.Context, rec *domain.MatchRecord) error
}

// outcome splits a match score into win/loss/draw increments.
func outcome(score float64) (wins, losses, draws int) {
	switch {
	case score >= 1:
		return 1, 0, 0
	case score <= 0:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}
