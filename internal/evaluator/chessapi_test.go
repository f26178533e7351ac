package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chessAPIServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chessAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FEN == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChessAPIReadsEval(t *testing.T) {
	srv := chessAPIServer(t, `{"eval": -0.42, "mate": null, "type": "bestmove"}`)
	api := NewChessAPI(srv.URL, 12, 2*time.Second)

	v, err := api.Evaluate(context.Background(), "8/8/8/8/8/8/8/K6k w - - 0 1")
	require.NoError(t, err)
	assert.InDelta(t, -0.42, v, 1e-9)
}

func TestChessAPIMateSaturates(t *testing.T) {
	srv := chessAPIServer(t, `{"eval": -1000, "mate": -2}`)
	v, err := NewChessAPI(srv.URL, 12, time.Second).Evaluate(context.Background(), "fen w")
	require.NoError(t, err)
	assert.Equal(t, -MateScore, v)
}

func TestChessAPIErrorPayload(t *testing.T) {
	srv := chessAPIServer(t, `{"error": "INVALID_FEN", "text": "bad fen"}`)
	_, err := NewChessAPI(srv.URL, 12, time.Second).Evaluate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_FEN")
}

func TestChessAPIMissingEval(t *testing.T) {
	srv := chessAPIServer(t, `{"type": "info"}`)
	_, err := NewChessAPI(srv.URL, 12, time.Second).Evaluate(context.Background(), "x")
	assert.ErrorIs(t, err, errNoEval)
}
