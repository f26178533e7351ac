// Package launcher starts a benchmark run: against an existing green agent,
// with every agent spawned locally, or with the coordinator in this process.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/benchbuilder"
	"github.com/park285/chessbench-go/internal/config"
	"github.com/park285/chessbench-go/internal/coordinator"
	"github.com/park285/chessbench-go/internal/greenagent"
	"github.com/park285/chessbench-go/internal/supervisor"
)

// Default local ports.
const (
	GreenPort  = 9001
	WhitePort1 = 9002
	WhitePort2 = 9003
)

// Sender delivers one A2A message. *a2a.Client implements it.
type Sender interface {
	Send(ctx context.Context, endpoint, text, contextID string) (a2a.Reply, error)
}

// Remote sends the benchmark task to a running green agent and returns its reply text.
func Remote(ctx context.Context, client Sender, green, white, black string, env map[string]any) (string, error) {
	green = strings.TrimRight(strings.TrimSpace(green), "/")
	if green == "" {
		return "", errors.New("launcher: green agent url is required")
	}
	task, err := greenagent.TaskText(white, black, env)
	if err != nil {
		return "", err
	}
	reply, err := client.Send(ctx, green, task, "")
	if err != nil {
		return "", fmt.Errorf("send task to %s: %w", green, err)
	}
	if reply.Kind != "message" {
		return "", fmt.Errorf("green agent at %s answered with %q", green, reply.Kind)
	}
	return reply.Message.Text(), nil
}

type Launcher struct {
	cfg        *config.AppConfig
	client     *a2a.Client
	logger     *zap.Logger
	executable string
	args       []string
	host       string
	greenPort  int
	whitePorts [2]int
	grace      time.Duration
}

type Option func(*Launcher)

// WithExecutable sets the binary spawned for each agent. Default: this binary
// with the "run" command.
func WithExecutable(path string, args ...string) Option {
	return func(l *Launcher) {
		l.executable = path
		l.args = args
	}
}

func WithPorts(green, white1, white2 int) Option {
	return func(l *Launcher) {
		l.greenPort = green
		l.whitePorts = [2]int{white1, white2}
	}
}

func WithGrace(d time.Duration) Option { return func(l *Launcher) { l.grace = d } }

func New(cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (*Launcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{
		cfg:        cfg,
		client:     a2a.NewClient(cfg.AgentTimeout, logger.Named("a2a")),
		logger:     logger,
		args:       []string{"run"},
		host:       cfg.Host,
		greenPort:  GreenPort,
		whitePorts: [2]int{WhitePort1, WhitePort2},
		grace:      5 * time.Second,
	}
	if l.host == "" {
		l.host = "127.0.0.1"
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		l.executable = exe
	}
	return l, nil
}

func (l *Launcher) endpoint(port int) string {
	return "http://" + net.JoinHostPort(l.host, strconv.Itoa(port))
}

func (l *Launcher) spec(name, role string, port int) supervisor.PeerSpec {
	ep := l.endpoint(port)
	return supervisor.PeerSpec{
		Name:     name,
		Command:  l.executable,
		Args:     l.args,
		Endpoint: ep,
		Env: []string{
			"CHESSBENCH_ROLE=" + role,
			"CHESSBENCH_HOST=" + l.host,
			"AGENT_PORT=" + strconv.Itoa(port),
			"AGENT_URL=" + ep,
		},
	}
}

func (l *Launcher) peerSpecs() []supervisor.PeerSpec {
	return []supervisor.PeerSpec{
		l.spec("white_1", config.RoleWhite, l.whitePorts[0]),
		l.spec("white_2", config.RoleWhite, l.whitePorts[1]),
	}
}

func (l *Launcher) newSupervisor() *supervisor.Supervisor {
	return supervisor.New(l.client, l.cfg.ReadyTimeout,
		supervisor.WithGrace(l.grace),
		supervisor.WithLogger(l.logger.Named("supervisor")),
	)
}

// Local spawns the green agent and two reference peers, sends the task and
// tears every process down before returning.
func (l *Launcher) Local(ctx context.Context) (string, error) {
	sup := l.newSupervisor()
	defer sup.Shutdown()

	specs := append([]supervisor.PeerSpec{l.spec("green", config.RoleGreen, l.greenPort)}, l.peerSpecs()...)
	if err := sup.Start(ctx, specs); err != nil {
		return "", err
	}
	l.logger.Info("launch_local_ready", zap.Int("agents", len(specs)))
	return Remote(ctx, l.client, specs[0].Endpoint, specs[1].Endpoint, specs[2].Endpoint, nil)
}

// InProcess spawns only the two peers and runs the coordinator here. The
// evaluator and stores are released on every exit path.
func (l *Launcher) InProcess(ctx context.Context) (*coordinator.Result, error) {
	sup := l.newSupervisor()
	defer sup.Shutdown()

	specs := l.peerSpecs()
	if err := sup.Start(ctx, specs); err != nil {
		return nil, err
	}

	deps, err := benchbuilder.NewGreen(ctx, l.cfg, l.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			l.logger.Warn("store_close_failed", zap.Error(err))
		}
	}()
	return deps.Coordinator.Run(ctx, coordinator.MatchRequest{White: specs[0].Endpoint, Black: specs[1].Endpoint})
}
