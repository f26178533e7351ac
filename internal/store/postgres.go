package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/rating"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS peer_ratings (
	peer          TEXT PRIMARY KEY,
	rating        DOUBLE PRECISION NOT NULL,
	games_played  INTEGER NOT NULL DEFAULT 0,
	wins          INTEGER NOT NULL DEFAULT 0,
	losses        INTEGER NOT NULL DEFAULT 0,
	draws         INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS bench_matches (
	match_id             TEXT PRIMARY KEY,
	white_peer           TEXT NOT NULL,
	black_peer           TEXT NOT NULL,
	result               TEXT NOT NULL,
	result_method        TEXT NOT NULL DEFAULT '',
	moves_uci            JSONB NOT NULL,
	moves_san            JSONB NOT NULL,
	pgn                  TEXT NOT NULL,
	plies                INTEGER NOT NULL,
	illegal_attempts     INTEGER NOT NULL DEFAULT 0,
	white_rating_before  DOUBLE PRECISION NOT NULL,
	white_rating_after   DOUBLE PRECISION NOT NULL,
	black_rating_before  DOUBLE PRECISION NOT NULL,
	black_rating_after   DOUBLE PRECISION NOT NULL,
	started_at           TIMESTAMPTZ NOT NULL,
	ended_at             TIMESTAMPTZ NOT NULL,
	duration_ms          BIGINT NOT NULL
);`

// Postgres stores ratings and match rows through database/sql and lib/pq.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing handle; the schema is assumed to exist.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Ratings(ctx context.Context, peers ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(peers))
	if len(peers) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT peer, rating FROM peer_ratings WHERE peer = ANY($1)`, pq.Array(peers))
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			peer string
			v    float64
		)
		if err := rows.Scan(&peer, &v); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out[peer] = v
	}
	return out, rows.Err()
}

func (p *Postgres) Apply(ctx context.Context, changes []rating.Change) error {
	const query = `
		INSERT INTO peer_ratings (peer, rating, games_played, wins, losses, draws, updated_at, created_at)
		VALUES ($1, $2, 1, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (peer)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			games_played = peer_ratings.games_played + 1,
			wins = peer_ratings.wins + EXCLUDED.wins,
			losses = peer_ratings.losses + EXCLUDED.losses,
			draws = peer_ratings.draws + EXCLUDED.draws,
			updated_at = NOW()`

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, c := range changes {
		w, l, d := outcome(c.Score)
		if _, err := tx.ExecContext(ctx, query, c.Peer, c.Rating, w, l, d); err != nil {
			return fmt.Errorf("upsert rating %s: %w", c.Peer, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) Peer(ctx context.Context, peer string) (domain.PeerRating, error) {
	const query = `
		SELECT peer, rating, games_played, wins, losses, draws, updated_at, created_at
		FROM peer_ratings
		WHERE peer = $1`
	var r domain.PeerRating
	err := p.db.QueryRowContext(ctx, query, peer).Scan(
		&r.Peer, &r.Rating, &r.GamesPlayed, &r.Wins, &r.Losses, &r.Draws, &r.UpdatedAt, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PeerRating{}, ErrNotFound
	}
	if err != nil {
		return domain.PeerRating{}, fmt.Errorf("select peer rating: %w", err)
	}
	return r, nil
}

func (p *Postgres) RecordMatch(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return errors.New("nil match record")
	}
	movesUCI, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(rec.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO bench_matches (
			match_id,
			white_peer,
			black_peer,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			plies,
			illegal_attempts,
			white_rating_before,
			white_rating_after,
			black_rating_before,
			black_rating_after,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (match_id) DO NOTHING`

	_, err = p.db.ExecContext(ctx, query,
		rec.ID,
		rec.WhitePeer,
		rec.BlackPeer,
		rec.Result,
		rec.ResultMethod,
		string(movesUCI),
		string(movesSAN),
		rec.PGN,
		rec.Plies,
		rec.IllegalAttempts,
		rec.WhiteRatingBefore,
		rec.WhiteRatingAfter,
		rec.BlackRatingBefore,
		rec.BlackRatingAfter,
		rec.StartedAt,
		rec.EndedAt,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}
