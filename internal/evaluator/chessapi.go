package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/park285/chessbench-go/internal/httpclient"
)

// DefaultChessAPIURL is the public chess-api.com endpoint.
const DefaultChessAPIURL = "https://chess-api.com/v1"

var errNoEval = errors.New("chessapi: response carried no evaluation")

type chessAPIRequest struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth,omitempty"`
}

// chessAPIResponse keeps only the fields the harness reads. Eval is in pawns
// from White's point of view; Mate is signed the same way.
type chessAPIResponse struct {
	Eval  *float64 `json:"eval"`
	Mate  *int     `json:"mate"`
	Type  string   `json:"type"`
	Error string   `json:"error"`
	Text  string   `json:"text"`
}

// ChessAPI evaluates positions through a remote scoring endpoint.
type ChessAPI struct {
	url    string
	depth  int
	client *httpclient.Client
}

func NewChessAPI(url string, depth int, timeout time.Duration) *ChessAPI {
	if url == "" {
		url = DefaultChessAPIURL
	}
	return &ChessAPI{
		url:    url,
		depth:  depth,
		client: httpclient.New(httpclient.WithTimeout(timeout), httpclient.WithRetry(2)),
	}
}

// ChessAPIFactory wraps NewChessAPI for Handle.
func ChessAPIFactory(url string, depth int, timeout time.Duration) Factory {
	return func(context.Context) (Backend, error) {
		return NewChessAPI(url, depth, timeout), nil
	}
}

func (c *ChessAPI) Evaluate(ctx context.Context, fen string) (float64, error) {
	var out chessAPIResponse
	if err := c.client.PostJSON(ctx, c.url, chessAPIRequest{FEN: fen, Depth: c.depth}, &out, true); err != nil {
		return 0, err
	}
	if out.Error != "" {
		return 0, errors.New("chessapi: " + out.Error + ": " + out.Text)
	}
	if out.Mate != nil {
		if *out.Mate > 0 {
			return MateScore, nil
		}
		if *out.Mate < 0 {
			return -MateScore, nil
		}
	}
	if out.Eval == nil {
		return 0, errNoEval
	}
	return Clamp(*out.Eval), nil
}

func (c *ChessAPI) Close() error { return nil }
