package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chessbench-go/internal/chess/uci"
)

// StockfishConfig selects the engine binary and search limits. At least one of
// Depth and MoveTime must be set.
type StockfishConfig struct {
	BinaryPath string
	Depth      int
	MoveTime   time.Duration
	HashMB     int
	Threads    int
}

// Stockfish evaluates positions with a local UCI engine at full strength.
type Stockfish struct {
	pool   *uci.Pool
	opt    uci.Options
	limits uci.Limits
}

func NewStockfish(cfg StockfishConfig) (*Stockfish, error) {
	if cfg.Depth <= 0 && cfg.MoveTime <= 0 {
		return nil, errors.New("stockfish: depth or movetime required")
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: cfg.BinaryPath, PerOptions: 1})
	if err != nil {
		return nil, err
	}
	return &Stockfish{
		pool: pool,
		opt:  uci.FullStrength(cfg.Threads, max(cfg.HashMB, 64)),
		limits: uci.Limits{
			Depth:          cfg.Depth,
			MoveTimeMillis: int(cfg.MoveTime / time.Millisecond),
		},
	}, nil
}

// StockfishFactory defers engine start-up until the first evaluation.
func StockfishFactory(cfg StockfishConfig) Factory {
	return func(ctx context.Context) (Backend, error) {
		sf, err := NewStockfish(cfg)
		if err != nil {
			return nil, err
		}
		// 첫 프로세스를 미리 띄워서 바이너리 문제를 바로 드러냄
		if err := sf.pool.Do(ctx, sf.opt, func(*uci.Process) error { return nil }); err != nil {
			_ = sf.pool.Close()
			return nil, err
		}
		return sf, nil
	}
}

func (s *Stockfish) Evaluate(ctx context.Context, fen string) (float64, error) {
	var res uci.SearchResult
	err := s.pool.Do(ctx, s.opt, func(p *uci.Process) error {
		var err error
		res, err = p.Search(ctx, uci.SearchRequest{FEN: fen, Limits: s.limits})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("stockfish: %w", err)
	}
	if !res.Score.Valid() {
		return 0, uci.ErrNoScore
	}
	return FromSideToMove(ScoreToPawns(res.Score), SideToMove(fen)), nil
}

func (s *Stockfish) Close() error {
	return s.pool.Close()
}

// ScoreToPawns converts an engine score to pawns for the side to move.
func ScoreToPawns(sc uci.Score) float64 {
	if sc.IsMate {
		if sc.Mate > 0 {
			return MateScore
		}
		return -MateScore
	}
	return Clamp(float64(sc.CP) / 100)
}

// SideToMove returns "w" or "b" from the FEN's second field, defaulting to "w".
func SideToMove(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return "b"
	}
	return "w"
}

// FromSideToMove turns a side-to-move score into White's perspective.
func FromSideToMove(v float64, side string) float64 {
	if side == "b" {
		return -v
	}
	return v
}
