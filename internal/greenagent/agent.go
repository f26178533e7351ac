// Package greenagent is the assessment server: it accepts a benchmark task over
// A2A, runs the rated match and reports the metrics back.
package greenagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/coordinator"
	"github.com/park285/chessbench-go/internal/metrics"
	"github.com/park285/chessbench-go/internal/msgcat"
	"github.com/park285/chessbench-go/internal/quality"
	"github.com/park285/chessbench-go/internal/rating"
	wire "github.com/park285/chessbench-go/pkg/a2a"
)

// ErrBusy is returned while another match is in progress.
var ErrBusy = errors.New("greenagent: a match is already running")

// DefaultCard is served when no card file is configured.
var DefaultCard = wire.AgentCard{
	Name:        "chessbench_green_agent",
	Description: "Runs a rated chess match between two agents and reports move quality.",
	Version:     "1.0.0",
	Skills: []wire.Skill{{
		ID:          "chess_assessment",
		Name:        "Chess assessment",
		Description: "Plays two agents against each other and scores every move.",
		Tags:        []string{"chess", "benchmark"},
	}},
}

// Runner plays one match. *coordinator.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, req coordinator.MatchRequest) (*coordinator.Result, error)
}

type Agent struct {
	runner  Runner
	catalog *msgcat.Catalog
	logger  *zap.Logger

	running sync.Mutex
}

func New(runner Runner, catalog *msgcat.Catalog, logger *zap.Logger) *Agent {
	if catalog == nil {
		catalog = msgcat.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{runner: runner, catalog: catalog, logger: logger}
}

// Report is the metrics payload returned to the requester.
type Report struct {
	MatchID      string          `json:"match_id"`
	Result       string          `json:"result"`
	Method       string          `json:"method"`
	Plies        int             `json:"plies"`
	Illegal      int             `json:"illegal_attempts"`
	TotalLoss    rating.Pair     `json:"total_loss"`
	Summary      quality.Summary `json:"summary"`
	RatingBefore rating.Pair     `json:"rating_before"`
	RatingAfter  rating.Pair     `json:"rating_after"`
	ArchiveKey   string          `json:"archive_key,omitempty"`
	TimeUsed     float64         `json:"time_used"`
}

func reportFrom(res *coordinator.Result, elapsed time.Duration) Report {
	return Report{
		MatchID:      res.MatchID,
		Result:       res.Result,
		Method:       res.Method,
		Plies:        res.Plies,
		Illegal:      res.Illegal,
		TotalLoss:    res.TotalLoss,
		Summary:      res.Summary,
		RatingBefore: res.Before,
		RatingAfter:  res.After,
		ArchiveKey:   res.ArchiveKey,
		TimeUsed:     elapsed.Seconds(),
	}
}

// Execute handles one task message. Malformed tasks get an explanatory reply;
// match failures are returned as errors.
func (a *Agent) Execute(ctx context.Context, in wire.Message) (string, error) {
	task, err := ParseTask(in.Text())
	if err != nil {
		a.logger.Warn("green_task_rejected", zap.String("context_id", in.ContextID), zap.Error(err))
		return a.catalog.Render(msgcat.KeyBadRequest, map[string]string{"Reason": err.Error()})
	}
	if !a.running.TryLock() {
		return "", ErrBusy
	}
	defer a.running.Unlock()

	a.logger.Info("green_task_received",
		zap.String("context_id", in.ContextID),
		zap.String("white", task.White),
		zap.String("black", task.Black),
		zap.Any("env_config", task.EnvConfig),
	)
	start := time.Now()
	res, err := a.runner.Run(ctx, coordinator.MatchRequest{White: task.White, Black: task.Black})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(reportFrom(res, time.Since(start)))
	if err != nil {
		return "", err
	}
	return a.catalog.Render(msgcat.KeyFinished, map[string]string{"Metrics": string(raw)})
}

// NewServer mounts the A2A routes plus /metrics and, when hub is non-nil,
// the spectator feed at /ws/matches.
func NewServer(card wire.AgentCard, agent *Agent, registry *prometheus.Registry, hub http.Handler, logger *zap.Logger) *gin.Engine {
	router := a2a.NewRouter(logger)
	a2a.NewHandler(card, agent, logger).Register(router)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	}
	if hub != nil {
		router.GET("/ws/matches", gin.WrapH(hub))
	}
	return router
}
