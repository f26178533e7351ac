// Package match drives one game between two remote peers: it solicits moves in
// turn, validates the answers, applies them and scores every ply.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/chess"
	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/evaluator"
	"github.com/park285/chessbench-go/internal/metrics"
	"github.com/park285/chessbench-go/internal/msgcat"
	"github.com/park285/chessbench-go/internal/notation"
	"github.com/park285/chessbench-go/internal/quality"
	wire "github.com/park285/chessbench-go/pkg/a2a"
)

// Rules is the game state the session drives. *chess.Game implements it.
type Rules interface {
	CurrentRole() domain.Role
	IsTerminal() bool
	LegalMoves() []notation.Move
	Apply(id string) error
	Returns() []float64
	FEN() string
	MoveNumber() int
}

// Transport sends one prompt to a peer. An empty contextID starts a conversation.
type Transport interface {
	Send(ctx context.Context, endpoint, text, contextID string) (a2a.Reply, error)
}

// PlayerBinding ties a role to its peer and the conversation it is in.
type PlayerBinding struct {
	Role      domain.Role `json:"role"`
	Endpoint  string      `json:"endpoint"`
	ContextID string      `json:"context_id,omitempty"`
}

// MoveRecord describes one applied ply. Records are never modified.
type MoveRecord struct {
	Ply        int            `json:"ply"`
	MoveNumber int            `json:"move_number"`
	Role       domain.Role    `json:"role"`
	Prompt     string         `json:"prompt"`
	Response   string         `json:"response"`
	Token      string         `json:"token"`
	Move       string         `json:"move"`
	SAN        string         `json:"san"`
	Eval       float64        `json:"eval"`
	Loss       float64        `json:"loss"`
	Bucket     quality.Bucket `json:"bucket"`
	FEN        string         `json:"fen"`
	Attempts   int            `json:"attempts"`
}

// Observer is notified after every applied ply, on the match goroutine.
type Observer interface {
	OnPly(ctx context.Context, s *Session, rec MoveRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, s *Session, rec MoveRecord)

func (f ObserverFunc) OnPly(ctx context.Context, s *Session, rec MoveRecord) { f(ctx, s, rec) }

// Options configures a session.
type Options struct {
	White string
	Black string
	// MaxRetries caps consecutive illegal answers per turn; 0 means no cap.
	MaxRetries int
	// Seats maps roles to rules-engine player indices; zero means chess.Seats.
	Seats domain.Seating

	Rules     Rules
	Transport Transport
	Evaluator evaluator.Evaluator
	Catalog   *msgcat.Catalog
	Logger    *zap.Logger
	Metrics   metrics.BenchMetrics
	Observers []Observer
}

// Session holds the state of a single match. It is not safe for concurrent use.
type Session struct {
	rules      Rules
	transport  Transport
	evaluator  evaluator.Evaluator
	catalog    *msgcat.Catalog
	logger     *zap.Logger
	metrics    metrics.BenchMetrics
	maxRetries int
	seats      domain.Seating
	observers  []Observer

	players map[domain.Role]*PlayerBinding
	records []MoveRecord
	evals   []float64
	sans    []string
	quality *quality.Aggregator
	gameLog GameLog

	// 치명적 오류 이후에는 보드와 기록이 어긋날 수 있으므로 세션을 닫는다
	failed error
}

type promptData struct {
	FEN      string
	Movetext string
	Legal    string
	Role     domain.Role
}

type logKeyData struct {
	Move int
	Role domain.Role
}

// New builds a session and evaluates the initial position.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Rules == nil || opts.Transport == nil || opts.Evaluator == nil {
		return nil, errors.New("match: rules, transport and evaluator are required")
	}
	if opts.White == "" || opts.Black == "" {
		return nil, errors.New("match: both endpoints are required")
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("match: negative retry cap %d", opts.MaxRetries)
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
	if opts.Seats == (domain.Seating{}) {
		opts.Seats = chess.Seats
	}

	s := &Session{
		rules:      opts.Rules,
		transport:  opts.Transport,
		evaluator:  opts.Evaluator,
		catalog:    opts.Catalog,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		maxRetries: opts.MaxRetries,
		seats:      opts.Seats,
		observers:  append([]Observer(nil), opts.Observers...),
		players: map[domain.Role]*PlayerBinding{
			domain.White: {Role: domain.White, Endpoint: opts.White},
			domain.Black: {Role: domain.Black, Endpoint: opts.Black},
		},
		quality: quality.NewAggregator(),
	}

	initial, err := s.evaluator.Evaluate(ctx, s.rules.FEN())
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate initial position: %w", ErrTransport, err)
	}
	s.evals = []float64{initial}
	return s, nil
}

// AddObserver registers o for subsequent plies.
func (s *Session) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Run plays turns until the game is over.
func (s *Session) Run(ctx context.Context) error {
	if s.failed != nil {
		return s.failed
	}
	for !s.rules.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Turn(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("match_complete",
		zap.String("result", s.Result()),
		zap.Int("plies", len(s.records)),
	)
	return nil
}

// Turn obtains and applies one move from the side to move, retrying on
// illegal answers up to the configured cap.
func (s *Session) Turn(ctx context.Context) (MoveRecord, error) {
	if s.failed != nil {
		return MoveRecord{}, s.failed
	}
	if s.rules.IsTerminal() {
		return MoveRecord{}, errors.New("match: game is over")
	}
	role := s.rules.CurrentRole()
	retry := false
	for attempt := 1; ; attempt++ {
		rec, err := s.attempt(ctx, role, retry, attempt)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrIllegalResponse) {
			if errors.Is(err, ErrProtocolViolation) {
				s.metrics.AddProtocolViolation(string(role))
			}
			s.logger.Error("turn_failed", zap.String("role", string(role)), zap.Int("attempt", attempt), zap.Error(err))
			s.failed = err
			return MoveRecord{}, err
		}

		s.metrics.AddIllegalResponse(string(role))
		s.logger.Warn("illegal_response",
			zap.String("role", string(role)),
			zap.Int("move", s.rules.MoveNumber()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if s.maxRetries > 0 && attempt > s.maxRetries {
			s.failed = fmt.Errorf("%w: %s after %d attempts: %v", ErrRetryLimit, role, attempt, err)
			return MoveRecord{}, s.failed
		}
		retry = true
	}
}

func (s *Session) attempt(ctx context.Context, role domain.Role, retry bool, attempt int) (MoveRecord, error) {
	legal := notation.Index(s.rules.LegalMoves())
	moveNumber := s.rules.MoveNumber()

	prompt, err := s.Prompt(role, legal, retry)
	if err != nil {
		return MoveRecord{}, err
	}

	text, err := s.exchange(ctx, role, prompt)
	if err != nil {
		return MoveRecord{}, err
	}

	token, err := ParseFinalAnswer(text)
	if err != nil {
		return MoveRecord{}, err
	}
	mv, ok := legal.Lookup(token)
	if !ok {
		return MoveRecord{}, fmt.Errorf("%w: token %q is not in the legal move list", ErrIllegalResponse, token)
	}
	if err := s.rules.Apply(mv.ID); err != nil {
		if errors.Is(err, chess.ErrIllegalMove) {
			return MoveRecord{}, fmt.Errorf("%w: %w", ErrIllegalResponse, err)
		}
		return MoveRecord{}, fmt.Errorf("apply %s: %w", mv.SAN, err)
	}

	fen := s.rules.FEN()
	after, err := s.evaluator.Evaluate(ctx, fen)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: evaluate after %s: %w", ErrTransport, mv.SAN, err)
	}

	before := s.evals[len(s.evals)-1]
	s.evals = append(s.evals, after)
	s.sans = append(s.sans, mv.SAN)
	sample := s.quality.Record(before, after, role)

	rec := MoveRecord{
		Ply:        len(s.records) + 1,
		MoveNumber: moveNumber,
		Role:       role,
		Prompt:     prompt,
		Response:   text,
		Token:      token,
		Move:       mv.ID,
		SAN:        mv.SAN,
		Eval:       after,
		Loss:       sample.Loss,
		Bucket:     sample.Bucket,
		FEN:        fen,
		Attempts:   attempt,
	}
	s.records = append(s.records, rec)
	if err := s.appendLog(rec); err != nil {
		s.logger.Warn("game_log_render_failed", zap.Error(err))
	}
	s.metrics.AddPly(string(role))

	s.logger.Info("ply_applied",
		zap.Int("ply", rec.Ply),
		zap.Int("move", rec.MoveNumber),
		zap.String("role", string(role)),
		zap.String("san", rec.SAN),
		zap.Float64("eval", after),
		zap.Float64("loss", sample.Loss),
		zap.String("bucket", string(sample.Bucket)),
	)

	for _, o := range s.observers {
		o.OnPly(ctx, s, rec)
	}
	return rec, nil
}

// exchange sends prompt and enforces the conversation contract on the reply.
func (s *Session) exchange(ctx context.Context, role domain.Role, prompt string) (string, error) {
	binding := s.players[role]
	start := time.Now()
	reply, err := s.transport.Send(ctx, binding.Endpoint, prompt, binding.ContextID)
	s.metrics.AddAgentLatency(string(role), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %s at %s: %w", ErrTransport, role, binding.Endpoint, err)
	}
	if reply.Kind != wire.KindMessage {
		return "", fmt.Errorf("%w: %s replied with %q instead of a message", ErrProtocolViolation, role, reply.Kind)
	}

	got := reply.Message.ContextID
	if got == "" {
		return "", fmt.Errorf("%w: %s replied without a context id", ErrProtocolViolation, role)
	}
	if binding.ContextID == "" {
		binding.ContextID = got
		s.logger.Debug("context_bound", zap.String("role", string(role)), zap.String("context_id", got))
	} else if got != binding.ContextID {
		return "", fmt.Errorf("%w: %s context id changed from %q to %q", ErrProtocolViolation, role, binding.ContextID, got)
	}

	parts := reply.Message.TextParts()
	if len(parts) != 1 {
		return "", fmt.Errorf("%w: %s sent %d text parts", ErrProtocolViolation, role, len(parts))
	}
	return parts[0], nil
}

// Prompt renders the move request for role. retry prepends the illegal-move notice.
func (s *Session) Prompt(role domain.Role, legal notation.LegalIndex, retry bool) (string, error) {
	body, err := s.catalog.Render(msgcat.KeyMovePrompt, promptData{
		FEN:      s.rules.FEN(),
		Movetext: s.Movetext(),
		Legal:    legal.String(),
		Role:     role,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	if !retry {
		return body, nil
	}
	prefix, err := s.catalog.Render(msgcat.KeyRetryPrefix, nil)
	if err != nil {
		return "", fmt.Errorf("render retry prefix: %w", err)
	}
	return prefix + body, nil
}

func (s *Session) appendLog(rec MoveRecord) error {
	data := logKeyData{Move: rec.MoveNumber, Role: rec.Role}
	keys := make([]string, 0, 3)
	for _, k := range []string{msgcat.KeyLogPrompt, msgcat.KeyLogResponse, msgcat.KeyLogEvaluation} {
		key, err := s.catalog.Render(k, data)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	s.gameLog = append(s.gameLog,
		LogEntry{Key: keys[0], Value: rec.Prompt},
		LogEntry{Key: keys[1], Value: rec.Response},
		LogEntry{Key: keys[2], Value: rec.Eval},
	)
	return nil
}

func (s *Session) IsTerminal() bool { return s.rules.IsTerminal() }

// Err is the fatal error that closed the session, or nil.
func (s *Session) Err() error { return s.failed }

// Returns gives the rules engine's per-player values, nil while running.
func (s *Session) Returns() []float64 { return s.rules.Returns() }

// Result is the game-record result token.
func (s *Session) Result() string {
	return notation.ResultToken(s.rules.Returns(), s.seats)
}

func (s *Session) FEN() string { return s.rules.FEN() }

// Movetext is the single-line game record so far.
func (s *Session) Movetext() string {
	return notation.Movetext(s.sans, s.Result())
}

// Transcript renders the full game record with h.
func (s *Session) Transcript(h notation.Header) string {
	return notation.PGN(h, s.sans, s.Result())
}

func (s *Session) SANs() []string { return append([]string(nil), s.sans...) }

func (s *Session) Records() []MoveRecord { return append([]MoveRecord(nil), s.records...) }

// Evaluations returns the evaluation history; index 0 is the initial position.
func (s *Session) Evaluations() []float64 { return append([]float64(nil), s.evals...) }

func (s *Session) Buckets() map[domain.Role]quality.PlayerBuckets { return s.quality.Snapshot() }

func (s *Session) Summary() quality.Summary { return s.quality.Summary() }

func (s *Session) GameLog() GameLog { return append(GameLog(nil), s.gameLog...) }

// Binding returns a copy of role's binding.
func (s *Session) Binding(role domain.Role) PlayerBinding {
	if b, ok := s.players[role]; ok {
		return *b
	}
	return PlayerBinding{}
}
