package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/match"
	"github.com/park285/chessbench-go/internal/metrics"
	"github.com/park285/chessbench-go/internal/notation"
	"github.com/park285/chessbench-go/internal/store"
)

// Artifact names written next to each other in the blob store.
const (
	GamePGN    = "game.pgn"
	GameData   = "game_data.json"
	PlayerData = "player_data.json"
	GameEval   = "game_eval.json"
)

// Artifacts lists the per-match artifacts in flush order.
var Artifacts = []string{GamePGN, GameData, PlayerData, GameEval}

// artifactWriter rewrites the match artifacts after every ply. Flush failures
// are logged and counted; they never stop the match.
type artifactWriter struct {
	blobs   store.Blobs
	header  notation.Header
	logger  *zap.Logger
	metrics metrics.BenchMetrics
}

func (w *artifactWriter) OnPly(ctx context.Context, s *match.Session, _ match.MoveRecord) {
	w.flush(ctx, s)
}

// flush writes every artifact and reports the names that failed.
func (w *artifactWriter) flush(ctx context.Context, s *match.Session) []string {
	var failed []string
	for _, name := range Artifacts {
		data, err := w.render(name, s)
		if err == nil {
			err = w.blobs.Put(ctx, name, data)
		}
		if err != nil {
			failed = append(failed, name)
			w.metrics.AddArtifactFlushFailure(name)
			w.logger.Warn("artifact_flush_failed", zap.String("artifact", name), zap.Error(err))
		}
	}
	return failed
}

func (w *artifactWriter) render(name string, s *match.Session) ([]byte, error) {
	switch name {
	case GamePGN:
		return []byte(s.Transcript(w.header)), nil
	case GameData:
		return json.MarshalIndent(s.GameLog(), "", "    ")
	case PlayerData:
		return json.MarshalIndent(s.Buckets(), "", "    ")
	case GameEval:
		return json.MarshalIndent(s.Evaluations(), "", "    ")
	default:
		return nil, fmt.Errorf("unknown artifact %q", name)
	}
}
