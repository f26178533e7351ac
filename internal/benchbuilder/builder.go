// Package benchbuilder assembles the runtime dependencies of the two agent roles
// from configuration.
package benchbuilder

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/chess"
	"github.com/park285/chessbench-go/internal/config"
	"github.com/park285/chessbench-go/internal/coordinator"
	"github.com/park285/chessbench-go/internal/evaluator"
	"github.com/park285/chessbench-go/internal/greenagent"
	"github.com/park285/chessbench-go/internal/metrics"
	"github.com/park285/chessbench-go/internal/msgcat"
	"github.com/park285/chessbench-go/internal/spectator"
	"github.com/park285/chessbench-go/internal/store"
	"github.com/park285/chessbench-go/internal/whiteagent"
)

// GreenDeps is everything the assessment server needs. Close releases the
// evaluator before the stores.
type GreenDeps struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Catalog     *msgcat.Catalog
	Registry    *prometheus.Registry
	Metrics     metrics.BenchMetrics
	Stores      *store.Stores
	Evaluator   *evaluator.Handle
	Client      *a2a.Client
	Hub         *spectator.Hub
	Coordinator *coordinator.Coordinator
	Agent       *greenagent.Agent
}

// NewGreen opens the configured stores and wires a coordinator around them.
// The evaluator backend is not started until the first position is scored.
func NewGreen(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*GreenDeps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	factory, err := evaluatorFactory(cfg)
	if err != nil {
		return nil, err
	}

	// 저장소 연결 (redis/postgres/mysql는 설정에 따라)
	stores, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	handle := evaluator.NewHandle(cfg.Evaluator, factory, logger.Named("evaluator"), m)
	client := a2a.NewClient(cfg.AgentTimeout, logger.Named("a2a"))
	hub := spectator.NewHub(logger.Named("spectator"))

	coord, err := coordinator.New(coordinator.Options{
		Blobs:      stores.Blobs,
		Ratings:    stores.Ratings,
		Recorder:   stores.Recorder,
		Transport:  client,
		Evaluator:  handle,
		Catalog:    catalog,
		MaxRetries: cfg.MaxRetries,
		Spectators: hub,
		Archive:    true,
		Logger:     logger.Named("coordinator"),
		Metrics:    m,
	})
	if err != nil {
		handle.Close()
		_ = stores.Close()
		return nil, err
	}

	return &GreenDeps{
		Config:      cfg,
		Logger:      logger,
		Catalog:     catalog,
		Registry:    registry,
		Metrics:     m,
		Stores:      stores,
		Evaluator:   handle,
		Client:      client,
		Hub:         hub,
		Coordinator: coord,
		Agent:       greenagent.New(coord, catalog, logger.Named("green")),
	}, nil
}

// Server builds the HTTP handler for the green agent, card included.
func (d *GreenDeps) Server() (*gin.Engine, error) {
	card, err := a2a.LoadCard(d.Config.AgentCardPath, greenagent.DefaultCard, d.Config.AgentURL)
	if err != nil {
		return nil, err
	}
	return greenagent.NewServer(card, d.Agent, d.Registry, d.Hub, d.Logger), nil
}

func (d *GreenDeps) Close() error {
	d.Evaluator.Close()
	return d.Stores.Close()
}

func evaluatorFactory(cfg *config.AppConfig) (evaluator.Factory, error) {
	switch cfg.Evaluator {
	case config.EvaluatorStockfish:
		return evaluator.StockfishFactory(evaluator.StockfishConfig{
			BinaryPath: cfg.StockfishPath,
			Depth:      cfg.EvalDepth,
			MoveTime:   time.Duration(cfg.EvalMoveTimeMs) * time.Millisecond,
		}), nil
	case config.EvaluatorChessAPI:
		return evaluator.ChessAPIFactory(cfg.ChessAPIURL, cfg.EvalDepth, cfg.AgentTimeout), nil
	default:
		return nil, fmt.Errorf("unknown evaluator %q", cfg.Evaluator)
	}
}

// PeerDeps is the reference peer and, when a UCI binary was found, its engine.
type PeerDeps struct {
	Config *config.AppConfig
	Logger *zap.Logger
	Agent  *whiteagent.Agent
	Engine *chess.Engine
}

// NewPeer builds the reference peer. Without a usable STOCKFISH_PATH the peer
// plays random legal moves.
func NewPeer(cfg *config.AppConfig, logger *zap.Logger) (*PeerDeps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	opts := []whiteagent.Option{whiteagent.WithCatalog(catalog), whiteagent.WithLogger(logger.Named("peer"))}
	deps := &PeerDeps{Config: cfg, Logger: logger}

	if path, ok := resolveBinary(cfg.StockfishPath); ok {
		if _, err := chess.GetPreset(cfg.PeerPreset); err != nil {
			return nil, err
		}
		engine, err := chess.NewEngine(path)
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		deps.Engine = engine
		opts = append(opts, whiteagent.WithEngine(engine, cfg.PeerPreset))
	} else {
		logger.Warn("peer_engine_unavailable", zap.String("stockfish_path", cfg.StockfishPath))
	}
	deps.Agent = whiteagent.New(opts...)
	return deps, nil
}

// Server builds the HTTP handler for the reference peer.
func (d *PeerDeps) Server() (http.Handler, error) {
	card, err := a2a.LoadCard(d.Config.AgentCardPath, whiteagent.DefaultCard, d.Config.AgentURL)
	if err != nil {
		return nil, err
	}
	router := a2a.NewRouter(d.Logger)
	a2a.NewHandler(card, d.Agent, d.Logger).Register(router)
	return router, nil
}

func (d *PeerDeps) Close() error {
	if d.Engine == nil {
		return nil
	}
	return d.Engine.Close()
}

func resolveBinary(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", false
	}
	return resolved, true
}

