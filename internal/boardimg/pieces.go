package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Silhouettes on a 45x45 canvas. {F} and {S} are replaced with fill and stroke.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="15" r="5.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<path d="M17 34 L19.5 21 L25.5 21 L28 34 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.Rook: `<path d="M13 10 L17 10 L17 13 L20.5 13 L20.5 10 L24.5 10 L24.5 13 L28 13 L28 10 L32 10 L32 16 L29 19 L29 31 L16 31 L16 19 L13 16 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.Knight: `<path d="M15 34 L17 25 L12 21 L14 15 L20 10 L21 7 L24 9 C30 10 33 17 32 34 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="19" cy="14" r="1.2" fill="{S}"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<ellipse cx="22.5" cy="20" rx="6.5" ry="9" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<path d="M16 34 L18 28 L27 28 L29 34 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.Queen: `<path d="M9 13 L14.5 29 L16.5 11 L22.5 27 L28.5 11 L30.5 29 L36 13 L32 34 L13 34 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.King: `<path d="M21 5 L24 5 L24 8 L27 8 L27 11 L24 11 L24 15 L21 15 L21 11 L18 11 L18 8 L21 8 Z" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<path d="M12 34 L14 19 C18 15 27 15 31 19 L33 34 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
}

const pieceBase = `<path d="M11 34 L34 34 L34 39 L11 39 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`

func pieceSVG(piece nchess.Piece) ([]byte, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return nil, fmt.Errorf("no shape for piece %v", piece)
	}
	fill, stroke := "#f8f8f8", "#1a1a1a"
	if piece.Color() == nchess.Black {
		fill, stroke = "#1f1f1f", "#d8d8d8"
	}
	body := strings.NewReplacer("{F}", fill, "{S}", stroke).Replace(shape + "\n" + pieceBase)
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` + "\n" + body + "\n</svg>"), nil
}

type sprite struct {
	piece nchess.Piece
	size  int
}

// 렌더링된 기물은 프로세스 수명 동안 재사용
var sprites sync.Map // sprite -> *image.RGBA

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := sprite{piece: piece, size: size}
	if img, ok := sprites.Load(key); ok {
		return img.(image.Image), nil
	}
	img, err := rasterize(piece, size)
	if err != nil {
		return nil, err
	}
	actual, _ := sprites.LoadOrStore(key, img)
	return actual.(image.Image), nil
}

func rasterize(piece nchess.Piece, size int) (*image.RGBA, error) {
	data, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	// image.NewRGBA starts fully transparent
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	icon.Draw(rasterx.NewDasher(size, size, rasterx.NewScannerGV(size, size, img, img.Bounds())), 1)
	return img, nil
}
