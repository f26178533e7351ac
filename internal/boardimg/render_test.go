package boardimg

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestRenderFENProducesBoard(t *testing.T) {
	data, err := RenderFEN(context.Background(), startFEN, Options{Title: "w vs b", LastMove: "e2e4"})
	if err != nil {
		t.Fatalf("RenderFEN: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != boardSize+sideMargin*2 || b.Dy() != boardSize+topMargin+bottomMargin {
		t.Fatalf("unexpected size %v", b)
	}

	// a1 is dark and its top-left corner is never covered by the rook.
	a1 := squareRect(nchess.A1, image.Point{X: sideMargin, Y: topMargin})
	r, g, bl, _ := img.At(a1.Min.X, a1.Min.Y).RGBA()
	if uint8(r>>8) != darkSquare.R || uint8(g>>8) != darkSquare.G || uint8(bl>>8) != darkSquare.B {
		t.Fatalf("a1 corner = %d,%d,%d", r>>8, g>>8, bl>>8)
	}
}

func TestRenderFENRejectsGarbage(t *testing.T) {
	if _, err := RenderFEN(context.Background(), "not a fen", Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderFEN(ctx, startFEN, Options{}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestParseUCISquares(t *testing.T) {
	from, to, ok := parseUCISquares("e7e8q")
	if !ok || from != nchess.E7 || to != nchess.E8 {
		t.Fatalf("got %v %v %v", from, to, ok)
	}
	if _, _, ok := parseUCISquares("z9a1"); ok {
		t.Fatal("expected rejection")
	}
}
