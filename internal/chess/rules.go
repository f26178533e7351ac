package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/notation"
)

// Player indices follow the rules engine's own ordering.
const (
	BlackPlayer = 0
	WhitePlayer = 1
)

// Seats maps roles onto player indices.
var Seats = domain.Seating{White: WhitePlayer, Black: BlackPlayer}

var ErrIllegalMove = errors.New("illegal move")

// Game wraps a chess game behind the capability set the match loop consumes.
type Game struct {
	game    *nchess.Game
	history []string
}

func NewGame() *Game {
	return &Game{game: nchess.NewGame()}
}

// FromFEN starts a game from an arbitrary position. History starts empty.
func FromFEN(fen string) (*Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("decode fen: %w", err)
	}
	return &Game{game: nchess.NewGame(opt)}, nil
}

func (g *Game) CurrentPlayer() int {
	if g.game.Position().Turn() == nchess.White {
		return WhitePlayer
	}
	return BlackPlayer
}

// CurrentRole is CurrentPlayer expressed as a role.
func (g *Game) CurrentRole() domain.Role {
	role, _ := Seats.RoleOf(g.CurrentPlayer())
	return role
}

func (g *Game) IsTerminal() bool {
	return g.game.Outcome() != nchess.NoOutcome
}

// LegalMoves lists legal moves in engine order; empty once terminal.
func (g *Game) LegalMoves() []notation.Move {
	if g.IsTerminal() {
		return nil
	}
	pos := g.game.Position()
	valid := g.game.ValidMoves()
	uci := nchess.UCINotation{}
	san := nchess.AlgebraicNotation{}
	out := make([]notation.Move, 0, len(valid))
	for i := range valid {
		mv := &valid[i]
		out = append(out, notation.Move{ID: uci.Encode(pos, mv), SAN: san.Encode(pos, mv)})
	}
	return out
}

// IsLegal reports whether id is currently a legal move.
func (g *Game) IsLegal(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, mv := range g.LegalMoves() {
		if mv.ID == id {
			return true
		}
	}
	return false
}

// Apply plays the move identified by its UCI id. State is unchanged when the
// error is ErrIllegalMove.
func (g *Game) Apply(id string) error {
	id = strings.ToLower(strings.TrimSpace(id))
	if g.IsTerminal() {
		return fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	if !g.IsLegal(id) {
		return fmt.Errorf("%w: %s", ErrIllegalMove, id)
	}
	mv, err := nchess.UCINotation{}.Decode(g.game.Position(), id)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrIllegalMove, id, err)
	}
	if err := g.game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, id, err)
	}
	g.history = append(g.history, id)
	return g.claimAutomaticDraw()
}

// 3회 반복과 50수 규칙은 자동 무승부 처리.
// A failed claim is not ErrIllegalMove: the move itself stays applied.
func (g *Game) claimAutomaticDraw() error {
	if g.IsTerminal() {
		return nil
	}
	for _, method := range g.game.EligibleDraws() {
		if method == nchess.ThreefoldRepetition || method == nchess.FiftyMoveRule {
			if err := g.game.Draw(method); err != nil {
				return fmt.Errorf("claim %s draw: %w", method, err)
			}
			return nil
		}
	}
	return nil
}

// Returns gives per-player terminal values in {-1, 0, 1}, indexed by player. Nil
// while the game is running.
func (g *Game) Returns() []float64 {
	out := make([]float64, 2)
	switch g.game.Outcome() {
	case nchess.WhiteWon:
		out[WhitePlayer], out[BlackPlayer] = 1, -1
	case nchess.BlackWon:
		out[WhitePlayer], out[BlackPlayer] = -1, 1
	case nchess.Draw:
	default:
		return nil
	}
	return out
}

func (g *Game) History() []string { return append([]string(nil), g.history...) }

func (g *Game) Plies() int { return len(g.history) }

// MoveNumber is the full-move number of the next move.
func (g *Game) MoveNumber() int { return len(g.history)/2 + 1 }

func (g *Game) FEN() string { return g.game.FEN() }

func (g *Game) Position() *nchess.Position { return g.game.Position() }

func (g *Game) Outcome() string { return string(g.game.Outcome()) }

func (g *Game) Method() string {
	if !g.IsTerminal() {
		return ""
	}
	return strings.ToLower(g.game.Method().String())
}
