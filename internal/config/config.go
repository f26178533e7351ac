package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env"
)

// Role selects which server `run` starts.
const (
	RoleGreen = "green"
	RoleWhite = "white"
)

const (
	EvaluatorStockfish = "stockfish"
	EvaluatorChessAPI  = "chessapi"

	ArtifactFile  = "file"
	ArtifactRedis = "redis"

	RatingArtifact = "artifact"
	RatingRedis    = "redis"
	RatingPostgres = "postgres"
	RatingMySQL    = "mysql"
	RatingMemory   = "memory"
)

type AppConfig struct {
	Role          string        `env:"CHESSBENCH_ROLE" envDefault:"green"`
	Host          string        `env:"CHESSBENCH_HOST" envDefault:"127.0.0.1"`
	Port          int           `env:"AGENT_PORT" envDefault:"9010"`
	AgentURL      string        `env:"AGENT_URL"`
	AgentCardPath string        `env:"AGENT_CARD_PATH"`
	AgentTimeout  time.Duration `env:"AGENT_TIMEOUT" envDefault:"0s"`
	ReadyTimeout  time.Duration `env:"READY_TIMEOUT" envDefault:"10s"`
	MaxRetries    int           `env:"MATCH_MAX_RETRIES" envDefault:"20"`

	Evaluator      string `env:"EVALUATOR" envDefault:"stockfish"`
	StockfishPath  string `env:"STOCKFISH_PATH" envDefault:"stockfish"`
	EvalDepth      int    `env:"EVAL_DEPTH" envDefault:"12"`
	EvalMoveTimeMs int    `env:"EVAL_MOVETIME_MS" envDefault:"0"`
	ChessAPIURL    string `env:"CHESS_API_URL" envDefault:"https://chess-api.com/v1"`

	ArtifactBackend string `env:"ARTIFACT_BACKEND" envDefault:"file"`
	ArtifactDir     string `env:"ARTIFACT_DIR" envDefault:"game_data"`
	RedisURL        string `env:"REDIS_URL"`

	RatingBackend string `env:"RATING_BACKEND" envDefault:"artifact"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MySQLDSN      string `env:"MYSQL_DSN"`

	PeerPreset string `env:"PEER_PRESET" envDefault:"level5"`
	MsgcatDir  string `env:"MSGCAT_DIR"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogToConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	LogToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogCaller    bool   `env:"LOG_CALLER" envDefault:"false"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"legacy"`
	LogFile      string `env:"LOG_FILE" envDefault:"logs/chessbench.log"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Role = strings.ToLower(strings.TrimSpace(c.Role))
	c.Host = strings.TrimSpace(c.Host)
	c.AgentURL = strings.TrimRight(strings.TrimSpace(c.AgentURL), "/")
	c.AgentCardPath = strings.TrimSpace(c.AgentCardPath)
	c.Evaluator = strings.ToLower(strings.TrimSpace(c.Evaluator))
	c.StockfishPath = strings.TrimSpace(c.StockfishPath)
	c.ChessAPIURL = strings.TrimSpace(c.ChessAPIURL)
	c.ArtifactBackend = strings.ToLower(strings.TrimSpace(c.ArtifactBackend))
	c.ArtifactDir = strings.TrimSpace(c.ArtifactDir)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RatingBackend = strings.ToLower(strings.TrimSpace(c.RatingBackend))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.MySQLDSN = strings.TrimSpace(c.MySQLDSN)
	c.PeerPreset = strings.TrimSpace(c.PeerPreset)
	c.MsgcatDir = strings.TrimSpace(c.MsgcatDir)

	if c.AgentURL == "" {
		c.AgentURL = "http://" + c.ListenAddr()
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = "game_data"
	}
}

func (c *AppConfig) Validate() error {
	if c.Role != RoleGreen && c.Role != RoleWhite {
		return fmt.Errorf("CHESSBENCH_ROLE must be %q or %q, got %q", RoleGreen, RoleWhite, c.Role)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("AGENT_PORT out of range: %d", c.Port)
	}
	if c.MaxRetries < 0 {
		return errors.New("MATCH_MAX_RETRIES must be >= 0")
	}
	if c.ReadyTimeout <= 0 {
		return errors.New("READY_TIMEOUT must be > 0")
	}
	if c.AgentTimeout < 0 {
		return errors.New("AGENT_TIMEOUT must be >= 0")
	}
	switch c.Evaluator {
	case EvaluatorStockfish:
		if c.StockfishPath == "" {
			return errors.New("STOCKFISH_PATH is required for the stockfish evaluator")
		}
		if c.EvalDepth <= 0 && c.EvalMoveTimeMs <= 0 {
			return errors.New("EVAL_DEPTH or EVAL_MOVETIME_MS must be set")
		}
	case EvaluatorChessAPI:
		if c.ChessAPIURL == "" {
			return errors.New("CHESS_API_URL is required for the chessapi evaluator")
		}
	default:
		return fmt.Errorf("unknown EVALUATOR %q", c.Evaluator)
	}
	switch c.ArtifactBackend {
	case ArtifactFile:
	case ArtifactRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis artifact backend")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.ArtifactBackend)
	}
	switch c.RatingBackend {
	case RatingArtifact, RatingMemory:
	case RatingRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis rating backend")
		}
	case RatingPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres rating backend")
		}
	case RatingMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required for the mysql rating backend")
		}
	default:
		return fmt.Errorf("unknown RATING_BACKEND %q", c.RatingBackend)
	}
	return nil
}

// ListenAddr is the host:port the agent server binds.
func (c *AppConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
