package uci

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestParseInfoScoreWithoutPV(t *testing.T) {
	in, ok := ParseInfo("info depth 12 seldepth 18 multipv 1 score cp 34 nodes 12000 nps 900000")
	if !ok {
		t.Fatalf("expected score")
	}
	if in.MultiPV != 1 || in.Score.CP != 34 || in.Score.IsMate || in.Score.Depth != 12 {
		t.Fatalf("unexpected info %+v", in)
	}
	if _, ok := in.Candidate(); ok {
		t.Fatalf("line without pv is not a candidate")
	}
}

func TestParseInfoMate(t *testing.T) {
	in, ok := ParseInfo("info depth 5 score mate -2 pv e2e4 e7e5")
	if !ok || !in.Score.IsMate || in.Score.Mate != -2 || in.Score.Centipawns() != -mateCP {
		t.Fatalf("unexpected mate info %+v ok=%v", in, ok)
	}
	in, ok = ParseInfo("info depth 0 score mate 0")
	if !ok || !in.Score.IsMate || in.Score.Mate != 0 {
		t.Fatalf("mated position should report mate 0: %+v", in)
	}
}

func TestParseInfoIgnoresNoise(t *testing.T) {
	for _, line := range []string{
		"info string NNUE evaluation using nn.nnue",
		"info depth 3 currmove e2e4 currmovenumber 1",
		"bestmove e2e4",
		"",
	} {
		if _, ok := ParseInfo(line); ok {
			t.Fatalf("%q should not parse", line)
		}
	}
}

func TestParseInfoCandidate(t *testing.T) {
	in, ok := ParseInfo("info depth 10 multipv 2 score mate 3 pv d1h5 g7g6")
	if !ok {
		t.Fatalf("expected info")
	}
	c, ok := in.Candidate()
	if !ok || in.MultiPV != 2 || c.Move != "d1h5" || c.EvalCP != mateCP || len(c.Principal) != 2 {
		t.Fatalf("unexpected candidate %+v (info %+v)", c, in)
	}
}

func TestLinesKeepLatestPerRank(t *testing.T) {
	var acc lines
	for _, l := range []string{
		"info depth 1 multipv 1 score cp 10 pv e2e4",
		"info depth 1 multipv 2 score cp 5 pv d2d4",
		"info depth 2 multipv 1 score cp 20 pv g1f3",
	} {
		in, _ := ParseInfo(l)
		acc.add(in)
	}
	got := acc.candidates()
	if len(got) != 2 || got[0].Move != "g1f3" || got[1].Move != "d2d4" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if acc.score.CP != 20 || acc.score.Depth != 2 {
		t.Fatalf("unexpected score %+v", acc.score)
	}
}

func TestPositionCommand(t *testing.T) {
	if got := positionCommand("", nil); got != "position startpos" {
		t.Fatalf("got %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := positionCommand(fen, []string{"a1a2"}); got != "position fen "+fen+" moves a1a2" {
		t.Fatalf("got %q", got)
	}
}

func TestGoCommand(t *testing.T) {
	got, err := Limits{Depth: 12, MoveTimeMillis: 500}.GoCommand()
	if err != nil || got != "go depth 12 movetime 500" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if _, err := (Limits{}).GoCommand(); err == nil {
		t.Fatalf("empty limits should fail")
	}
}

func TestSearchTimeoutBounds(t *testing.T) {
	if d := (Limits{Depth: 1}).timeout(); d != 6*time.Second {
		t.Fatalf("depth floor: %v", d)
	}
	if d := (Limits{Depth: 200}).timeout(); d != 20*time.Second {
		t.Fatalf("depth ceiling: %v", d)
	}
}

func TestOptionsKeyDistinguishesStrength(t *testing.T) {
	a := Options{SkillLevel: 3, HashMB: 16, MultiPV: 1}.key()
	b := FullStrength(1, 16).key()
	if a == b {
		t.Fatalf("different skill levels share a key: %s", a)
	}
	if err := (Options{SkillLevel: 21, HashMB: 16, MultiPV: 1}).validate(); err == nil {
		t.Fatalf("skill 21 should be rejected")
	}
}

func TestNewPoolRequiresBinary(t *testing.T) {
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("empty binary path should fail")
	}
	if _, err := NewPool(PoolConfig{BinaryPath: "/nonexistent/engine-binary"}); err == nil {
		t.Fatalf("missing binary should fail")
	}
}

const fakeEngine = `#!/bin/sh
while read -r line; do
  case "$line" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    go*) echo "info string thinking"
         echo "info depth 1 multipv 1 score cp 25 pv e2e4 e7e5"
         echo "info depth 1 multipv 2 score cp -10 pv d2d4"
         echo "bestmove e2e4 ponder e7e5" ;;
    quit) exit 0 ;;
  esac
done
`

func writeFakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte(fakeEngine), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	return path
}

func TestPoolSearchesWithFakeEngine(t *testing.T) {
	pool, err := NewPool(PoolConfig{BinaryPath: writeFakeEngine(t), PerOptions: 1})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	ctx := context.Background()
	opt := Options{SkillLevel: 5, HashMB: 16, MultiPV: 2}

	var first *Process
	for i := 0; i < 2; i++ {
		err := pool.Do(ctx, opt, func(p *Process) error {
			if first == nil {
				first = p
			} else if p != first {
				t.Errorf("process was not reused")
			}
			if err := p.NewGame(ctx); err != nil {
				return err
			}
			res, err := p.Search(ctx, SearchRequest{Limits: Limits{Depth: 1}})
			if err != nil {
				return err
			}
			if res.BestMove != "e2e4" || len(res.Candidates) != 2 || res.Score.CP != 25 {
				t.Errorf("unexpected result %+v", res)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("do: %v", err)
		}
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err = pool.Do(ctx, opt, func(*Process) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestFailedWorkDiscardsProcess(t *testing.T) {
	pool, err := NewPool(PoolConfig{BinaryPath: writeFakeEngine(t), PerOptions: 1})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	ctx := context.Background()
	opt := FullStrength(1, 16)

	boom := errors.New("boom")
	var first *Process
	if err := pool.Do(ctx, opt, func(p *Process) error { first = p; return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := pool.Do(ctx, opt, func(p *Process) error {
		if p == first {
			t.Errorf("failed process was reused")
		}
		return nil
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
}
