package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/rating"
)

// RatingsKey is the blob holding the endpoint -> rating map.
const RatingsKey = "elo.json"

// BlobRatings keeps all ratings in one JSON object stored in a Blobs backend.
type BlobRatings struct {
	blobs Blobs
	key   string
	mu    sync.Mutex
}

func NewBlobRatings(blobs Blobs) *BlobRatings {
	return &BlobRatings{blobs: blobs, key: RatingsKey}
}

func (b *BlobRatings) Ratings(ctx context.Context, peers ...string) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	all, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(peers))
	for _, p := range peers {
		if v, ok := all[p]; ok {
			out[p] = v
		}
	}
	return out, nil
}

func (b *BlobRatings) Apply(ctx context.Context, changes []rating.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	all, err := b.load(ctx)
	if err != nil {
		return err
	}
	for _, c := range changes {
		all[c.Peer] = c.Rating
	}
	raw, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal ratings: %w", err)
	}
	return b.blobs.Put(ctx, b.key, raw)
}

func (b *BlobRatings) load(ctx context.Context) (map[string]float64, error) {
	raw, err := b.blobs.Get(ctx, b.key)
	if errors.Is(err, ErrNotFound) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	all := map[string]float64{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.key, err)
	}
	return all, nil
}

// Memory is an in-process rating store and match recorder, used in tests and
// when no persistent backend is configured.
type Memory struct {
	mu      sync.RWMutex
	peers   map[string]*domain.PeerRating
	matches []domain.MatchRecord
}

func NewMemory() *Memory {
	return &Memory{peers: make(map[string]*domain.PeerRating)}
}

func (m *Memory) Ratings(_ context.Context, peers ...string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(peers))
	for _, p := range peers {
		if r, ok := m.peers[p]; ok {
			out[p] = r.Rating
		}
	}
	return out, nil
}

func (m *Memory) Apply(_ context.Context, changes []rating.Change) error {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range changes {
		r, ok := m.peers[c.Peer]
		if !ok {
			r = &domain.PeerRating{Peer: c.Peer, CreatedAt: now}
			m.peers[c.Peer] = r
		}
		w, l, d := outcome(c.Score)
		r.Rating = c.Rating
		r.GamesPlayed++
		r.Wins += w
		r.Losses += l
		r.Draws += d
		r.UpdatedAt = now
	}
	return nil
}

// Peer returns a copy of the stored row for peer.
func (m *Memory) Peer(peer string) (domain.PeerRating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.peers[peer]
	if !ok {
		return domain.PeerRating{}, ErrNotFound
	}
	return *r, nil
}

func (m *Memory) RecordMatch(_ context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return errors.New("nil match record")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.matches {
		if existing.ID == rec.ID {
			return nil
		}
	}
	m.matches = append(m.matches, *rec)
	return nil
}

// Matches lists recorded matches, most recent first.
func (m *Memory) Matches() []domain.MatchRecord {
	m.mu.RLock()
	items := append([]domain.MatchRecord(nil), m.matches...)
	m.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	return items
}
