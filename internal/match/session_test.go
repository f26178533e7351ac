package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/chess"
	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/notation"
	"github.com/park285/chessbench-go/internal/quality"
	wire "github.com/park285/chessbench-go/pkg/a2a"
)

const (
	whiteURL = "http://white.test"
	blackURL = "http://black.test"

	startFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	retryPrefix  = "The last move was illegal, please make sure to return a valid index in the correct format.\n"
	promptOpener = "Let's play chess. The current game state in Forsyth-Edwards Notation (FEN) notation is:\n"
)

type peerReply struct {
	text      string
	parts     []string
	contextID string
	kind      string
	err       error
}

type fakePeer struct {
	respond  func(prompt string, call int) peerReply
	prompts  []string
	contexts []string
}

type fakeTransport struct {
	peers map[string]*fakePeer
}

func (f *fakeTransport) Send(_ context.Context, endpoint, text, contextID string) (a2a.Reply, error) {
	p, ok := f.peers[endpoint]
	if !ok {
		return a2a.Reply{}, fmt.Errorf("unknown endpoint %s", endpoint)
	}
	call := len(p.prompts)
	p.prompts = append(p.prompts, text)
	p.contexts = append(p.contexts, contextID)

	r := p.respond(text, call)
	if r.err != nil {
		return a2a.Reply{}, r.err
	}
	kind := r.kind
	if kind == "" {
		kind = wire.KindMessage
	}
	if kind != wire.KindMessage {
		return a2a.Reply{Kind: kind}, nil
	}
	parts := r.parts
	if parts == nil {
		parts = []string{r.text}
	}
	msg := wire.Message{Kind: wire.KindMessage, Role: wire.RoleAgent, MessageID: fmt.Sprintf("m%d", call), ContextID: r.contextID}
	for _, text := range parts {
		msg.Parts = append(msg.Parts, wire.Part{Kind: wire.KindText, Text: text})
	}
	return a2a.Reply{Kind: kind, Message: msg}, nil
}

type seqEvaluator struct {
	values []float64
	failAt int
	calls  int
}

func (e *seqEvaluator) Evaluate(context.Context, string) (float64, error) {
	call := e.calls
	e.calls++
	if e.failAt > 0 && call == e.failAt {
		return 0, errors.New("engine died")
	}
	if call < len(e.values) {
		return e.values[call], nil
	}
	return 0, nil
}

func legalFromPrompt(t *testing.T, prompt string) notation.LegalIndex {
	t.Helper()
	_, after, ok := strings.Cut(prompt, "The legal moves are:\n")
	require.True(t, ok, "prompt has no legal move list:\n%s", prompt)
	line, _, _ := strings.Cut(after, "\n")
	ix, err := notation.ParseIndex(line)
	require.NoError(t, err)
	return ix
}

// playing answers with the given moves in order, always inside contextID.
func playing(t *testing.T, contextID string, sans ...string) *fakePeer {
	t.Helper()
	next := 0
	return &fakePeer{respond: func(prompt string, _ int) peerReply {
		san := sans[next]
		next++
		token, ok := legalFromPrompt(t, prompt).TokenForSAN(san)
		require.True(t, ok, "move %s not offered", san)
		return peerReply{text: fmt.Sprintf("I like %s here.\nFinal Answer: %s", san, token), contextID: contextID}
	}}
}

func newSession(t *testing.T, tr *fakeTransport, eval *seqEvaluator, maxRetries int) *Session {
	t.Helper()
	s, err := New(context.Background(), Options{
		White:      whiteURL,
		Black:      blackURL,
		MaxRetries: maxRetries,
		Rules:      chess.NewGame(),
		Transport:  tr,
		Evaluator:  eval,
	})
	require.NoError(t, err)
	return s
}

func TestRunFoolsMate(t *testing.T) {
	white := playing(t, "ctx-white", "f3", "g4")
	black := playing(t, "ctx-black", "e5", "Qh4#")
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: black}}
	eval := &seqEvaluator{values: []float64{0.2, -0.5, -0.4, -3, -100}}

	var observed []int
	s := newSession(t, tr, eval, 0)
	s.AddObserver(ObserverFunc(func(_ context.Context, s *Session, rec MoveRecord) {
		observed = append(observed, rec.Ply)
		assert.Len(t, s.Evaluations(), rec.Ply+1)
	}))

	require.NoError(t, s.Run(context.Background()))

	assert.True(t, s.IsTerminal())
	assert.Equal(t, "0-1", s.Result())
	assert.Equal(t, "1. f3 e5 2. g4 Qh4# 0-1", s.Movetext())
	assert.Equal(t, []int{1, 2, 3, 4}, observed)

	recs := s.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, []domain.Role{domain.White, domain.Black, domain.White, domain.Black},
		[]domain.Role{recs[0].Role, recs[1].Role, recs[2].Role, recs[3].Role})
	assert.Equal(t, []int{1, 1, 2, 2}, []int{recs[0].MoveNumber, recs[1].MoveNumber, recs[2].MoveNumber, recs[3].MoveNumber})
	assert.Equal(t, "f2f3", recs[0].Move)
	assert.Equal(t, -100.0, recs[3].Eval)

	evals := s.Evaluations()
	assert.Equal(t, []float64{0.2, -0.5, -0.4, -3, -100}, evals)
	assert.Len(t, evals, len(recs)+1)

	buckets := s.Buckets()
	for _, role := range domain.Roles {
		overall := buckets[role][quality.Overall]
		assert.Len(t, overall, 2, role)
		split := len(buckets[role][quality.Equal]) + len(buckets[role][quality.Winning]) + len(buckets[role][quality.Losing])
		assert.Equal(t, len(overall), split, role)
	}
	// Black's last move came from -3 (winning for Black) and gained 97 pawns.
	assert.Equal(t, []float64{-97}, buckets[domain.Black][quality.Winning])

	assert.Equal(t, "ctx-white", s.Binding(domain.White).ContextID)
	assert.Equal(t, "ctx-black", s.Binding(domain.Black).ContextID)
	assert.Equal(t, []string{"", "ctx-white"}, white.contexts)

	log := s.GameLog()
	require.Len(t, log, 12)
	assert.Equal(t, "Move 1 input prompt for White", log[0].Key)
	assert.Equal(t, "Move 1 model response for White", log[1].Key)
	assert.Equal(t, "Move 1 game evaluation after White's move", log[2].Key)
	v, ok := log.Get("Move 2 game evaluation after Black's move")
	require.True(t, ok)
	assert.Equal(t, -100.0, v)
}

func TestPromptLayout(t *testing.T) {
	white := playing(t, "w", "e4", "Nf3")
	black := playing(t, "b", "e5")
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: black}}
	s := newSession(t, tr, &seqEvaluator{}, 0)

	for i := 0; i < 3; i++ {
		_, err := s.Turn(context.Background())
		require.NoError(t, err)
	}

	first := white.prompts[0]
	assert.True(t, strings.HasPrefix(first, promptOpener+startFEN+"\nThe moves played so far are:\n*.\nThe legal moves are:\n{'1': '"), first)
	assert.Contains(t, first, "\nYou are playing as player White.\n")
	assert.True(t, strings.HasSuffix(first, "Final Answer: Y\nwhere Y is the index of your chosen move from the legal moves above."), first)
	assert.Equal(t, 20, legalFromPrompt(t, first).Len())

	assert.Contains(t, black.prompts[0], "\nThe moves played so far are:\n1. e4 *.\n")
	assert.Contains(t, black.prompts[0], "You are playing as player Black.")
	assert.Contains(t, white.prompts[1], "\nThe moves played so far are:\n1. e4 e5 *.\n")
}

func TestIllegalAnswerIsRetriedWithoutStateChange(t *testing.T) {
	white := &fakePeer{}
	white.respond = func(prompt string, call int) peerReply {
		if call == 0 {
			return peerReply{text: "Final Answer: 7000", contextID: "w"}
		}
		token, _ := legalFromPrompt(t, prompt).TokenForSAN("e4")
		return peerReply{text: "Final Answer: " + token, contextID: "w"}
	}
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: playing(t, "b")}}
	eval := &seqEvaluator{values: []float64{0, 0.3}}
	s := newSession(t, tr, eval, 5)

	rec, err := s.Turn(context.Background())
	require.NoError(t, err)

	require.Len(t, white.prompts, 2)
	assert.False(t, strings.HasPrefix(white.prompts[0], retryPrefix))
	assert.Equal(t, retryPrefix+white.prompts[0], white.prompts[1])
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, "e4", rec.SAN)
	assert.Equal(t, rec.Prompt, white.prompts[1])

	// White moved from 0.0 to 0.3.
	assert.InDelta(t, -0.3, rec.Loss, 1e-9)
	assert.Equal(t, quality.Equal, rec.Bucket)
	assert.Equal(t, []float64{0, 0.3}, s.Evaluations())
	assert.Equal(t, 2, eval.calls)
}

func TestRetryLimit(t *testing.T) {
	white := &fakePeer{respond: func(string, int) peerReply {
		return peerReply{text: "I resign\nFinal Answer: none", contextID: "w"}
	}}
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: playing(t, "b")}}
	s := newSession(t, tr, &seqEvaluator{}, 2)

	_, err := s.Turn(context.Background())
	require.ErrorIs(t, err, ErrRetryLimit)
	assert.False(t, errors.Is(err, ErrIllegalResponse))
	assert.Len(t, white.prompts, 3)

	_, again := s.Turn(context.Background())
	require.ErrorIs(t, again, ErrRetryLimit)
	assert.Len(t, white.prompts, 3, "a closed session must not prompt again")

	assert.Empty(t, s.Records())
	assert.Equal(t, []float64{0}, s.Evaluations())
	assert.Empty(t, s.GameLog())
	assert.Equal(t, startFEN, s.FEN())
	assert.Equal(t, "*", s.Movetext())
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name    string
		replies []peerReply
	}{
		{"context changed", []peerReply{{text: "Final Answer: 1", contextID: "a"}, {text: "Final Answer: 1", contextID: "b"}}},
		{"missing context id", []peerReply{{text: "Final Answer: 1"}}},
		{"two text parts", []peerReply{{parts: []string{"thinking", "Final Answer: 1"}, contextID: "a"}}},
		{"no text parts", []peerReply{{parts: []string{}, contextID: "a"}}},
		{"task instead of message", []peerReply{{kind: wire.KindTask}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			white := &fakePeer{respond: func(_ string, call int) peerReply { return tt.replies[call] }}
			black := &fakePeer{respond: func(string, int) peerReply { return peerReply{text: "Final Answer: 1", contextID: "b"} }}
			tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: black}}
			s := newSession(t, tr, &seqEvaluator{}, 0)

			err := s.Run(context.Background())
			require.ErrorIs(t, err, ErrProtocolViolation)
			assert.False(t, errors.Is(err, ErrIllegalResponse))
			assert.Len(t, white.prompts, len(tt.replies))
		})
	}
}

func TestTransportFailureIsFatal(t *testing.T) {
	white := &fakePeer{respond: func(string, int) peerReply { return peerReply{err: errors.New("connection refused")} }}
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: playing(t, "b")}}
	s := newSession(t, tr, &seqEvaluator{}, 0)

	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Len(t, white.prompts, 1)
	assert.Empty(t, s.Records())
}

func TestEvaluatorFailureIsFatal(t *testing.T) {
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: playing(t, "w", "e4"), blackURL: playing(t, "b")}}
	s := newSession(t, tr, &seqEvaluator{failAt: 1}, 0)

	_, err := s.Turn(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, s.Records())
	assert.Equal(t, []float64{0}, s.Evaluations())
	require.ErrorIs(t, s.Err(), ErrTransport)

	// 실패 후 호출은 같은 오류를 돌려주고 상태를 건드리지 않는다
	fen := s.FEN()
	_, again := s.Turn(context.Background())
	require.ErrorIs(t, again, ErrTransport)
	require.ErrorIs(t, s.Run(context.Background()), ErrTransport)

	assert.Empty(t, tr.peers[blackURL].prompts)
	assert.Empty(t, s.Records())
	assert.Equal(t, []float64{0}, s.Evaluations())
	assert.Empty(t, s.SANs())
	assert.Equal(t, "*", s.Movetext())
	assert.Equal(t, fen, s.FEN())
}

// failingClaim plays moves normally but reports a failed draw claim afterwards.
type failingClaim struct {
	*chess.Game
}

func (g failingClaim) Apply(id string) error {
	if err := g.Game.Apply(id); err != nil {
		return err
	}
	return errors.New("claim threefold draw: rejected")
}

func TestRulesFailureAfterMoveIsFatal(t *testing.T) {
	white := playing(t, "w", "e4", "Nf3")
	tr := &fakeTransport{peers: map[string]*fakePeer{whiteURL: white, blackURL: playing(t, "b")}}
	s, err := New(context.Background(), Options{
		White:     whiteURL,
		Black:     blackURL,
		Rules:     failingClaim{chess.NewGame()},
		Transport: tr,
		Evaluator: &seqEvaluator{},
	})
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIllegalResponse))
	assert.Len(t, white.prompts, 1)
	assert.Empty(t, s.Records())
	require.ErrorIs(t, s.Err(), err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(context.Background(), Options{White: whiteURL, Black: blackURL})
	require.Error(t, err)

	_, err = New(context.Background(), Options{
		White: whiteURL, Black: blackURL, MaxRetries: -1,
		Rules: chess.NewGame(), Transport: &fakeTransport{}, Evaluator: &seqEvaluator{},
	})
	require.Error(t, err)

	_, err = New(context.Background(), Options{
		White: whiteURL, Black: blackURL,
		Rules: chess.NewGame(), Transport: &fakeTransport{}, Evaluator: &seqEvaluator{},
	})
	require.NoError(t, err)
}
