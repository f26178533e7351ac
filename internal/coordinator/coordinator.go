// Package coordinator runs a complete rated match: it wires a session to the
// configured stores, keeps the artifacts current, and settles ratings at the end.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/chess"
	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/evaluator"
	"github.com/park285/chessbench-go/internal/match"
	"github.com/park285/chessbench-go/internal/metrics"
	"github.com/park285/chessbench-go/internal/msgcat"
	"github.com/park285/chessbench-go/internal/notation"
	"github.com/park285/chessbench-go/internal/quality"
	"github.com/park285/chessbench-go/internal/rating"
	"github.com/park285/chessbench-go/internal/store"
)

// ArchivePrefix is the blob prefix for per-match snapshots.
const ArchivePrefix = "archive/"

// BoardImage is the snapshot of the final position stored in the archive.
const BoardImage = "board.png"

// MatchRequest names the two peers. White moves first.
type MatchRequest struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// Spectators receives live match events. *spectator.Hub implements it.
type Spectators interface {
	Observer(matchID string) match.Observer
	Finished(matchID, result string)
}

// Result summarises a finished match.
type Result struct {
	MatchID     string          `json:"match_id"`
	ArchiveKey  string          `json:"archive_key,omitempty"`
	White       string          `json:"white"`
	Black       string          `json:"black"`
	Result      string          `json:"result"`
	Method      string          `json:"method"`
	Plies       int             `json:"plies"`
	Illegal     int             `json:"illegal_attempts"`
	Scores      rating.Pair     `json:"scores"`
	Before      rating.Pair     `json:"rating_before"`
	After       rating.Pair     `json:"rating_after"`
	TotalLoss   rating.Pair     `json:"total_loss"`
	Summary     quality.Summary `json:"summary"`
	Evaluations []float64       `json:"evaluations"`
	Duration    time.Duration   `json:"duration"`
	// FailedArtifacts lists artifacts whose final flush failed.
	FailedArtifacts []string `json:"failed_artifacts,omitempty"`
}

type Options struct {
	Blobs   store.Blobs
	Ratings rating.Store
	// Recorder is optional.
	Recorder   store.Recorder
	Transport  match.Transport
	Evaluator  evaluator.Evaluator
	Catalog    *msgcat.Catalog
	MaxRetries int
	// Spectators is optional.
	Spectators Spectators
	// Observers are attached to every session after the artifact writer.
	Observers []match.Observer
	// Archive copies the final artifacts and a board snapshot under ArchivePrefix.
	Archive bool
	Logger  *zap.Logger
	Metrics metrics.BenchMetrics
	Now     func() time.Time
}

type Coordinator struct {
	opts Options
}

func New(opts Options) (*Coordinator, error) {
	if opts.Blobs == nil || opts.Ratings == nil {
		return nil, errors.New("coordinator: blobs and ratings are required")
	}
	if opts.Transport == nil || opts.Evaluator == nil {
		return nil, errors.New("coordinator: transport and evaluator are required")
	}
	if opts.Catalog == nil {
		opts.Catalog = msgcat.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{opts: opts}, nil
}

// Run plays req to completion, then updates both ratings and archives the match.
// On failure the artifacts flushed so far stay in place and ratings are untouched.
func (c *Coordinator) Run(ctx context.Context, req MatchRequest) (*Result, error) {
	req.White, req.Black = strings.TrimSpace(req.White), strings.TrimSpace(req.Black)
	if req.White == "" || req.Black == "" {
		return nil, errors.New("coordinator: both endpoints are required")
	}

	started := c.opts.Now()
	matchID := ulid.Make().String()
	logger := c.opts.Logger.With(
		zap.String("match_id", matchID),
		zap.String("white", req.White),
		zap.String("black", req.Black),
	)

	prior, err := rating.Lookup(ctx, c.opts.Ratings, req.White, req.Black)
	if err != nil {
		return nil, fmt.Errorf("read ratings: %w", err)
	}

	game := chess.NewGame()
	writer := &artifactWriter{
		blobs:   c.opts.Blobs,
		header:  notation.Header{Event: "Chess Game", Date: started, White: req.White, Black: req.Black},
		logger:  logger,
		metrics: c.opts.Metrics,
	}
	observers := []match.Observer{writer}
	if c.opts.Spectators != nil {
		observers = append(observers, c.opts.Spectators.Observer(matchID))
	}
	observers = append(observers, c.opts.Observers...)

	session, err := match.New(ctx, match.Options{
		White:      req.White,
		Black:      req.Black,
		MaxRetries: c.opts.MaxRetries,
		Seats:      chess.Seats,
		Rules:      game,
		Transport:  c.opts.Transport,
		Evaluator:  c.opts.Evaluator,
		Catalog:    c.opts.Catalog,
		Logger:     logger,
		Metrics:    c.opts.Metrics,
		Observers:  observers,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("match_started", zap.Float64("white_rating", prior.White), zap.Float64("black_rating", prior.Black))
	if err := session.Run(ctx); err != nil {
		c.opts.Metrics.AddMatchFinished("error")
		if c.opts.Spectators != nil {
			c.opts.Spectators.Finished(matchID, "*")
		}
		return nil, fmt.Errorf("match %s: %w", matchID, err)
	}

	// 최종 결과 토큰이 들어간 PGN으로 한 번 더 기록
	failed := writer.flush(ctx, session)

	scores, err := rating.Scores(session.Returns(), chess.Seats)
	if err != nil {
		return nil, err
	}
	next := rating.UpdatePair(prior, scores)
	if err := c.opts.Ratings.Apply(ctx, rating.Changes(req.White, req.Black, next, scores)); err != nil {
		return nil, fmt.Errorf("write ratings: %w", err)
	}

	records := session.Records()
	ended := c.opts.Now()
	res := &Result{
		MatchID:         matchID,
		White:           req.White,
		Black:           req.Black,
		Result:          session.Result(),
		Method:          game.Method(),
		Plies:           len(records),
		Illegal:         pie.Sum(pie.Map(records, func(r match.MoveRecord) int { return r.Attempts - 1 })),
		Scores:          scores,
		Before:          prior,
		After:           next,
		TotalLoss:       totalLoss(session),
		Summary:         session.Summary(),
		Evaluations:     session.Evaluations(),
		Duration:        ended.Sub(started),
		FailedArtifacts: failed,
	}

	if c.opts.Recorder != nil {
		rec := &domain.MatchRecord{
			ID:                matchID,
			WhitePeer:         req.White,
			BlackPeer:         req.Black,
			Result:            res.Result,
			ResultMethod:      res.Method,
			MovesUCI:          pie.Map(records, func(r match.MoveRecord) string { return r.Move }),
			MovesSAN:          movesSAN(game, session),
			PGN:               session.Transcript(writer.header),
			Plies:             res.Plies,
			IllegalAttempts:   res.Illegal,
			WhiteRatingBefore: prior.White,
			WhiteRatingAfter:  next.White,
			BlackRatingBefore: prior.Black,
			BlackRatingAfter:  next.Black,
			StartedAt:         started,
			EndedAt:           ended,
			Duration:          res.Duration,
		}
		if err := c.opts.Recorder.RecordMatch(ctx, rec); err != nil {
			logger.Warn("match_record_failed", zap.Error(err))
		}
	}

	if c.opts.Archive {
		key, err := c.archive(ctx, matchID, req, session, records)
		if err != nil {
			logger.Warn("match_archive_failed", zap.Error(err))
		} else {
			res.ArchiveKey = key
		}
	}

	c.opts.Metrics.AddMatchFinished(res.Result)
	if c.opts.Spectators != nil {
		c.opts.Spectators.Finished(matchID, res.Result)
	}
	logger.Info("match_finished",
		zap.String("result", res.Result),
		zap.String("method", res.Method),
		zap.Int("plies", res.Plies),
		zap.Float64("white_rating", next.White),
		zap.Float64("black_rating", next.Black),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// movesSAN replays the applied UCI history; the session's own list is the fallback.
func movesSAN(game *chess.Game, s *match.Session) []string {
	sans, err := notation.Replay(game.History())
	if err != nil {
		return s.SANs()
	}
	return sans
}

func totalLoss(s *match.Session) rating.Pair {
	b := s.Buckets()
	return rating.Pair{
		White: pie.Sum(b[domain.White][quality.Overall]),
		Black: pie.Sum(b[domain.Black][quality.Overall]),
	}
}
