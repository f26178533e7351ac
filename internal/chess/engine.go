package chess

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/park285/chessbench-go/internal/chess/uci"
)

// Candidate is an engine line the reference peer may play.
type Candidate = uci.Candidate

var ErrNoCandidates = errors.New("no candidates to choose from")

// Engine chooses moves with a pooled UCI engine, tuned by difficulty preset.
type Engine struct {
	pool   *uci.Pool
	randMu sync.Mutex
	rand   *rand.Rand
}

func NewEngine(binaryPath string) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: binaryPath})
	if err != nil {
		return nil, err
	}
	return &Engine{
		pool: pool,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

type MoveRequest struct {
	PresetName string
	FEN        string
}

type MoveResult struct {
	Preset         DifficultyPreset
	Duration       time.Duration
	Candidates     []Candidate
	Chosen         Candidate
	EngineBestMove string
}

// ChooseMove searches the position and picks a candidate the way the preset
// prescribes.
func (e *Engine) ChooseMove(ctx context.Context, req MoveRequest) (MoveResult, error) {
	preset, err := GetPreset(req.PresetName)
	if err != nil {
		return MoveResult{}, err
	}
	if err := ValidatePreset(preset); err != nil {
		return MoveResult{}, err
	}

	var (
		res   uci.SearchResult
		start = time.Now()
	)
	err = e.pool.Do(ctx, preset.options(), func(p *uci.Process) error {
		if err := p.NewGame(ctx); err != nil {
			return err
		}
		var err error
		res, err = p.Search(ctx, uci.SearchRequest{FEN: req.FEN, Limits: preset.limits()})
		return err
	})
	if err != nil {
		return MoveResult{}, err
	}

	candidates := res.Candidates
	if len(candidates) == 0 {
		if res.BestMove == "" || res.BestMove == "(none)" {
			return MoveResult{}, fmt.Errorf("engine returned no candidates")
		}
		candidates = []Candidate{{Move: res.BestMove, Principal: []string{res.BestMove}}}
	}
	chosen, err := pick(preset, candidates, e.random())
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{
		Preset:         preset,
		Duration:       time.Since(start),
		Candidates:     candidates,
		Chosen:         chosen,
		EngineBestMove: res.BestMove,
	}, nil
}

func (e *Engine) random() *rand.Rand {
	e.randMu.Lock()
	seed := e.rand.Int63()
	e.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (e *Engine) SetRandomSeed(seed int64) {
	e.randMu.Lock()
	e.rand = rand.New(rand.NewSource(seed))
	e.randMu.Unlock()
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

// pick draws one of the preset's primary lines by weight, then jitters the
// reported score by up to EvalNoise centipawns.
func pick(p DifficultyPreset, candidates []Candidate, r *rand.Rand) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	weights := p.CandidateWeights[:min(p.PrimaryChoices, len(candidates), len(p.CandidateWeights))]

	total := 0.0
	for _, w := range weights {
		total += w
	}
	choice := candidates[0]
	if total > 0 {
		x := r.Float64() * total
		idx := len(weights) - 1
		for i, w := range weights {
			if x -= w; x <= 0 {
				idx = i
				break
			}
		}
		choice = candidates[idx]
	}

	if p.EvalNoise > 0 {
		offset := int64(r.Intn(2*p.EvalNoise+1) - p.EvalNoise)
		choice.EvalCP = int(max(min(int64(choice.EvalCP)+offset, math.MaxInt32), math.MinInt32))
	}
	return choice, nil
}
