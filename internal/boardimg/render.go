// Package boardimg draws a chess position as a PNG snapshot for match archives.
package boardimg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	sideMargin   = 28
	topMargin    = 44
	bottomMargin = 28
)

// Options adjusts the snapshot. Zero value draws the bare position.
type Options struct {
	// Title is printed above the board.
	Title string
	// LastMove is a UCI move whose squares get highlighted.
	LastMove string
}

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	backgroundColor     = color.RGBA{28, 31, 46, 255}
	lastMoveFill        = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	titleTextColor      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

var (
	ranks = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

// RenderFEN decodes fen and renders it from White's side.
func RenderFEN(ctx context.Context, fen string, opts Options) ([]byte, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("decode fen: %w", err)
	}
	return RenderPNG(ctx, nchess.NewGame(opt).Position().Board(), opts)
}

func RenderPNG(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, errors.New("board is nil")
	}

	totalWidth := boardSize + sideMargin*2
	totalHeight := boardSize + topMargin + bottomMargin
	origin := image.Point{X: sideMargin, Y: topMargin}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawSquares(img, origin)
	if from, to, ok := parseUCISquares(opts.LastMove); ok {
		drawSquareOverlay(img, from, origin, lastMoveFill)
		drawSquareOverlay(img, to, origin, lastMoveFill)
	}
	if err := drawPieces(img, board, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin)
	drawTitle(img, opts.Title, totalWidth)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for _, rank := range ranks {
		for _, file := range files {
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, squareRect(sq, origin), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, origin image.Point) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(sq, origin), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, origin image.Point, clr color.Color) {
	imagedraw.Draw(img, squareRect(sq, origin), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawCoordinates(dst imagedraw.Image, origin image.Point) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()

	for row, rank := range ranks {
		center := origin.Y + row*squareSize + squareSize/2
		drawCenteredText(drawer, rank.String(), origin.X-sideMargin/2, center+ascent/2)
	}
	baseline := origin.Y + boardSize + (bottomMargin+ascent)/2
	for col, file := range files {
		drawCenteredText(drawer, file.String(), origin.X+col*squareSize+squareSize/2, baseline)
	}
}

func drawTitle(dst imagedraw.Image, title string, width int) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(titleTextColor)}
	// 좁은 폭에서는 뒤를 잘라낸다
	for len(title) > 1 && drawer.MeasureString(title).Round() > width-sideMargin*2 {
		title = title[:len(title)-1]
	}
	drawCenteredText(drawer, title, width/2, (topMargin+face.Metrics().Ascent.Ceil())/2)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareRect(sq nchess.Square, origin image.Point) image.Rectangle {
	row := 7 - int(sq.Rank())
	col := int(sq.File())
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func parseUCISquares(move string) (nchess.Square, nchess.Square, bool) {
	move = strings.TrimSpace(move)
	if len(move) < 4 {
		return nchess.NoSquare, nchess.NoSquare, false
	}
	from, ok1 := parseSquare(move[0:2])
	to, ok2 := parseSquare(move[2:4])
	return from, to, ok1 && ok2
}

func parseSquare(s string) (nchess.Square, bool) {
	f, r := s[0], s[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(f-'a'), nchess.Rank(r-'1')), true
}
