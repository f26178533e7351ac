package chess

import (
	"errors"
	"testing"
)

func playAll(t *testing.T, g *Game, moves ...string) {
	t.Helper()
	for _, mv := range moves {
		if err := g.Apply(mv); err != nil {
			t.Fatalf("apply %s: %v", mv, err)
		}
	}
}

func TestNewGameState(t *testing.T) {
	g := NewGame()
	if g.CurrentPlayer() != WhitePlayer {
		t.Fatalf("white should move first")
	}
	if g.IsTerminal() {
		t.Fatalf("initial position is not terminal")
	}
	if n := len(g.LegalMoves()); n != 20 {
		t.Fatalf("expected 20 legal moves, got %d", n)
	}
	if g.Returns() != nil {
		t.Fatalf("returns should be nil before the end")
	}
	if g.MoveNumber() != 1 {
		t.Fatalf("move number = %d", g.MoveNumber())
	}
}

func TestApplyRejectsIllegalMoveWithoutMutation(t *testing.T) {
	g := NewGame()
	fen := g.FEN()
	err := g.Apply("e2e5")
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if g.FEN() != fen || g.Plies() != 0 {
		t.Fatalf("state changed after illegal move")
	}
}

func TestMoveNumberAndTurn(t *testing.T) {
	g := NewGame()
	playAll(t, g, "e2e4")
	if g.CurrentPlayer() != BlackPlayer || g.MoveNumber() != 1 {
		t.Fatalf("after 1. e4: player=%d move=%d", g.CurrentPlayer(), g.MoveNumber())
	}
	playAll(t, g, "e7e5")
	if g.MoveNumber() != 2 {
		t.Fatalf("after 1... e5: move=%d", g.MoveNumber())
	}
	if got := g.History(); len(got) != 2 || got[0] != "e2e4" {
		t.Fatalf("history = %v", got)
	}
}

func TestFoolsMate(t *testing.T) {
	g := NewGame()
	playAll(t, g, "f2f3", "e7e5", "g2g4", "d8h4")
	if !g.IsTerminal() {
		t.Fatalf("expected checkmate")
	}
	r := g.Returns()
	if r[BlackPlayer] != 1 || r[WhitePlayer] != -1 {
		t.Fatalf("returns = %v", r)
	}
	if g.Method() != "checkmate" {
		t.Fatalf("method = %q", g.Method())
	}
	if len(g.LegalMoves()) != 0 {
		t.Fatalf("terminal game should expose no moves")
	}
	if err := g.Apply("a2a3"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("move after mate should fail, got %v", err)
	}
}

func TestThreefoldRepetitionEndsGame(t *testing.T) {
	g := NewGame()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	playAll(t, g, shuffle...)
	playAll(t, g, shuffle...)
	if !g.IsTerminal() {
		t.Fatalf("threefold repetition should end the game")
	}
	r := g.Returns()
	if r[0] != 0 || r[1] != 0 {
		t.Fatalf("draw returns = %v", r)
	}
}

func TestFromFEN(t *testing.T) {
	// after 1. e4
	g, err := FromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	if g.CurrentPlayer() != BlackPlayer {
		t.Fatalf("black should be to move")
	}
	if !g.IsLegal("e7e5") || g.IsLegal("e2e4") {
		t.Fatalf("unexpected legality from the given position")
	}
	if _, err := FromFEN("garbage"); err == nil {
		t.Fatalf("expected decode error")
	}
}
