//go:build unix

package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/benchbuilder"
	"github.com/park285/chessbench-go/internal/config"
	"github.com/park285/chessbench-go/internal/coordinator"
	"github.com/park285/chessbench-go/internal/greenagent"
	"github.com/park285/chessbench-go/internal/supervisor"
	wire "github.com/park285/chessbench-go/pkg/a2a"
)

const helperEnv = "CHESSBENCH_LAUNCHER_HELPER"

// TestMain doubles as the agent binary the launcher spawns.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		if err := runHelper(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runHelper() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	switch cfg.Role {
	case config.RoleGreen:
		deps, err := benchbuilder.NewGreen(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer deps.Close()
		router, err := deps.Server()
		if err != nil {
			return err
		}
		return a2a.Serve(ctx, cfg.ListenAddr(), router, nil)
	default:
		deps, err := benchbuilder.NewPeer(cfg, nil)
		if err != nil {
			return err
		}
		defer deps.Close()
		handler, err := deps.Server()
		if err != nil {
			return err
		}
		return a2a.Serve(ctx, cfg.ListenAddr(), handler, nil)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func fakeScorer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"eval": 0.2, "type": "bestmove"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// benchEnv points spawned agents at a fake scorer and a temp artifact dir.
func benchEnv(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	scorer := fakeScorer(t)
	t.Setenv(helperEnv, "1")
	t.Setenv("EVALUATOR", config.EvaluatorChessAPI)
	t.Setenv("CHESS_API_URL", scorer.URL)
	t.Setenv("ARTIFACT_DIR", dir)
	t.Setenv("RATING_BACKEND", config.RatingArtifact)
	t.Setenv("STOCKFISH_PATH", "chessbench-no-such-engine")
	t.Setenv("LOG_TO_CONSOLE", "false")
	return &config.AppConfig{
		Host:            "127.0.0.1",
		ReadyTimeout:    10 * time.Second,
		MaxRetries:      20,
		Evaluator:       config.EvaluatorChessAPI,
		ChessAPIURL:     scorer.URL,
		ArtifactBackend: config.ArtifactFile,
		ArtifactDir:     dir,
		RatingBackend:   config.RatingArtifact,
	}
}

func newTestLauncher(t *testing.T, cfg *config.AppConfig) *Launcher {
	t.Helper()
	l, err := New(cfg, nil,
		WithExecutable(os.Args[0]),
		WithPorts(freePort(t), freePort(t), freePort(t)),
		WithGrace(2*time.Second),
	)
	require.NoError(t, err)
	return l
}

func TestRemoteSendsTask(t *testing.T) {
	var got string
	router := a2a.NewRouter(nil)
	a2a.NewHandler(greenagent.DefaultCard, a2a.ExecutorFunc(func(_ context.Context, in wire.Message) (string, error) {
		got = in.Text()
		return "Finished. Metrics: {}\n", nil
	}), nil).Register(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	out, err := Remote(context.Background(), a2a.NewClient(5*time.Second, nil), srv.URL+"/", "http://w1", "http://w2", nil)
	require.NoError(t, err)
	assert.Equal(t, "Finished. Metrics: {}\n", out)

	task, err := greenagent.ParseTask(got)
	require.NoError(t, err)
	assert.Equal(t, "http://w1", task.White)
	assert.Equal(t, "http://w2", task.Black)
}

func TestRemoteErrors(t *testing.T) {
	client := a2a.NewClient(time.Second, nil)
	_, err := Remote(context.Background(), client, " ", "http://w1", "http://w2", nil)
	require.Error(t, err)

	_, err = Remote(context.Background(), client, "http://127.0.0.1:1", "http://w1", "http://w2", nil)
	require.Error(t, err)
}

func TestInProcessPlaysRatedMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns agent processes")
	}
	cfg := benchEnv(t)
	l := newTestLauncher(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	res, err := l.InProcess(ctx)
	require.NoError(t, err)

	assert.Contains(t, []string{"1-0", "0-1", "1/2-1/2"}, res.Result)
	assert.Len(t, res.Evaluations, res.Plies+1)
	assert.InDelta(t, 0, (res.After.White-res.Before.White)+(res.After.Black-res.Before.Black), 1e-9)

	_, err = os.Stat(cfg.ArtifactDir + "/elo.json")
	require.NoError(t, err)
	_, err = os.Stat(cfg.ArtifactDir + "/" + coordinator.ArchivePrefix + res.ArchiveKey + "/" + coordinator.BoardImage)
	require.NoError(t, err)

	// peers were torn down
	_, err = a2a.NewClient(time.Second, nil).FetchCard(context.Background(), l.endpoint(l.whitePorts[0]))
	assert.Error(t, err)
}

func TestLocalReturnsGreenMetrics(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns agent processes")
	}
	l := newTestLauncher(t, benchEnv(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	out, err := l.Local(ctx)
	require.NoError(t, err)

	raw, ok := strings.CutPrefix(out, "Finished. Metrics: ")
	require.True(t, ok, out)
	var report greenagent.Report
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(raw)), &report))
	assert.NotEmpty(t, report.MatchID)
	assert.Greater(t, report.Plies, 0)
}

func TestReadinessFailureTearsDown(t *testing.T) {
	cfg := benchEnv(t)
	cfg.ReadyTimeout = 500 * time.Millisecond
	l, err := New(cfg, nil, WithExecutable("sleep", "30"), WithPorts(freePort(t), freePort(t), freePort(t)), WithGrace(time.Second))
	require.NoError(t, err)

	_, err = l.InProcess(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, supervisor.ErrReadinessTimeout), err)
}
