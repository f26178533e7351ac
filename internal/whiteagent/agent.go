// Package whiteagent is a reference peer that answers move prompts with a
// pooled UCI engine, or with a random legal move when no engine is available.
package whiteagent

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/chess"
	"github.com/park285/chessbench-go/internal/msgcat"
	"github.com/park285/chessbench-go/internal/notation"
	wire "github.com/park285/chessbench-go/pkg/a2a"
)

const (
	fenMarker   = "(FEN) notation is:\n"
	legalMarker = "The legal moves are:\n"
)

var ErrNoPosition = errors.New("whiteagent: prompt carries no position")

// DefaultCard is served when no card file is configured.
var DefaultCard = wire.AgentCard{
	Name:        "chessbench_reference_peer",
	Description: "Reference chess player answering move prompts with an engine.",
	Version:     "1.0.0",
	Skills: []wire.Skill{{
		ID:          "chess_move",
		Name:        "Chess move",
		Description: "Chooses a move from the offered legal moves.",
		Tags:        []string{"chess"},
	}},
}

// MoveChooser picks an engine move. *chess.Engine implements it.
type MoveChooser interface {
	ChooseMove(ctx context.Context, req chess.MoveRequest) (chess.MoveResult, error)
}

type Agent struct {
	engine  MoveChooser
	preset  string
	catalog *msgcat.Catalog
	logger  *zap.Logger

	mu    sync.Mutex
	rand  *rand.Rand
	turns map[string]int // context id -> prompts answered
}

type Option func(*Agent)

// WithEngine enables engine play at the given preset.
func WithEngine(engine MoveChooser, preset string) Option {
	return func(a *Agent) {
		a.engine = engine
		a.preset = preset
	}
}

func WithSeed(seed int64) Option {
	return func(a *Agent) { a.rand = rand.New(rand.NewSource(seed)) }
}

func WithCatalog(c *msgcat.Catalog) Option {
	return func(a *Agent) {
		if c != nil {
			a.catalog = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(opts ...Option) *Agent {
	a := &Agent{
		catalog: msgcat.Default(),
		logger:  zap.NewNop(),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		turns:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prompt is the part of a move request the peer needs.
type Prompt struct {
	FEN   string
	Legal notation.LegalIndex
}

// ParsePrompt extracts the FEN line and the legal-move mapping.
func ParsePrompt(text string) (Prompt, error) {
	_, afterFEN, ok := strings.Cut(text, fenMarker)
	if !ok {
		return Prompt{}, ErrNoPosition
	}
	fen, _, _ := strings.Cut(afterFEN, "\n")
	_, afterLegal, ok := strings.Cut(text, legalMarker)
	if !ok {
		return Prompt{}, ErrNoPosition
	}
	line, _, _ := strings.Cut(afterLegal, "\n")
	legal, err := notation.ParseIndex(line)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{FEN: strings.TrimSpace(fen), Legal: legal}, nil
}

// Execute answers one move prompt.
func (a *Agent) Execute(ctx context.Context, in wire.Message) (string, error) {
	turn := a.nextTurn(in.ContextID)
	p, err := ParsePrompt(in.Text())
	if err != nil {
		a.logger.Warn("peer_prompt_unparseable", zap.String("context_id", in.ContextID), zap.Error(err))
		return a.catalog.Render(msgcat.KeyPeerNoLegal, nil)
	}

	token, reason, err := a.choose(ctx, p)
	if err != nil {
		return "", err
	}
	a.logger.Debug("peer_move_chosen",
		zap.String("context_id", in.ContextID),
		zap.Int("turn", turn),
		zap.String("token", token),
	)
	return a.catalog.Render(msgcat.KeyPeerAnswer, map[string]string{"Reason": reason, "Token": token})
}

func (a *Agent) nextTurn(contextID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns[contextID]++
	return a.turns[contextID]
}

// Conversations reports how many distinct contexts have been served.
func (a *Agent) Conversations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns)
}

func (a *Agent) choose(ctx context.Context, p Prompt) (token, reason string, err error) {
	if a.engine != nil {
		token, reason, err = a.engineMove(ctx, p)
		if err == nil {
			return token, reason, nil
		}
		a.logger.Warn("peer_engine_failed", zap.String("fen", p.FEN), zap.Error(err))
	}
	return a.randomMove(p)
}

func (a *Agent) engineMove(ctx context.Context, p Prompt) (string, string, error) {
	res, err := a.engine.ChooseMove(ctx, chess.MoveRequest{PresetName: a.preset, FEN: p.FEN})
	if err != nil {
		return "", "", err
	}
	san, err := sanFor(p.FEN, res.Chosen.Move)
	if err != nil {
		return "", "", err
	}
	token, ok := p.Legal.TokenForSAN(san)
	if !ok {
		return "", "", errors.New("engine move " + san + " is not in the offered list")
	}
	reason, err := a.catalog.Render(msgcat.KeyPeerEngine, map[string]any{
		"SAN":   san,
		"Eval":  res.Chosen.EvalCP,
		"Depth": res.Preset.DepthCap,
	})
	return token, reason, err
}

func (a *Agent) randomMove(p Prompt) (string, string, error) {
	tokens := p.Legal.Tokens()
	a.mu.Lock()
	token := tokens[a.rand.Intn(len(tokens))]
	a.mu.Unlock()
	mv, _ := p.Legal.Lookup(token)
	reason, err := a.catalog.Render(msgcat.KeyPeerRandom, map[string]string{"SAN": mv.SAN})
	return token, reason, err
}

// sanFor converts a UCI move in the position given by fen to SAN.
func sanFor(fen, uci string) (string, error) {
	g, err := chess.FromFEN(fen)
	if err != nil {
		return "", err
	}
	uci = strings.ToLower(strings.TrimSpace(uci))
	for _, mv := range g.LegalMoves() {
		if mv.ID == uci {
			return mv.SAN, nil
		}
	}
	return "", errors.New("move " + uci + " is not legal here")
}
