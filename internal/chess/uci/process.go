package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/obslog"
)

const (
	handshakeTimeout = 4 * time.Second
	readyAttempts    = 3
	readyRetryDelay  = 150 * time.Millisecond
	quitGrace        = time.Second
)

var (
	// ErrNoScore is returned when a search finishes without reporting a score.
	ErrNoScore = errors.New("uci: search reported no score")
	// ErrExited is returned once the engine's output has ended.
	ErrExited = errors.New("uci: engine exited")
)

// Process is one running engine. Searches on a process are serialised.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	out     chan string
	readErr error // valid once out is closed
	stop    chan struct{}

	writeMu   sync.Mutex
	searchMu  sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Start launches binaryPath, completes the uci handshake and applies opt. The
// process outlives ctx; ctx only bounds the handshake.
func Start(ctx context.Context, binaryPath string, opt Options) (*Process, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	// 엔진 프로세스는 요청 컨텍스트보다 오래 살아야 함
	cmd := exec.CommandContext(context.WithoutCancel(ctx), binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		out:   make(chan string, 64),
		stop:  make(chan struct{}),
	}
	go p.readLoop(stdout)

	if err := p.handshake(ctx, opt); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) readLoop(r io.Reader) {
	defer close(p.out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		select {
		case p.out <- strings.TrimSpace(sc.Text()):
		case <-p.stop:
			return
		}
	}
	p.readErr = sc.Err()
}

func (p *Process) handshake(ctx context.Context, opt Options) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := p.send("uci"); err != nil {
		return err
	}
	if err := p.waitFor(ctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, cmd := range opt.setoptions() {
		if err := p.send(cmd); err != nil {
			return err
		}
	}
	if err := p.send("isready"); err != nil {
		return err
	}
	if err := p.waitFor(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (p *Process) send(cmd string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, cmd+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", strings.Fields(cmd)[0], err)
	}
	return nil
}

func (p *Process) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.out:
		if !ok {
			if p.readErr != nil {
				return "", fmt.Errorf("%w: %v", ErrExited, p.readErr)
			}
			return "", ErrExited
		}
		return line, nil
	}
}

// waitFor discards output until a line starting with token.
func (p *Process) waitFor(ctx context.Context, token string) error {
	for {
		line, err := p.next(ctx)
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, token) {
			return nil
		}
	}
}

// Ready round-trips isready, which also flushes any stale output.
func (p *Process) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := p.send("isready"); err != nil {
		return err
	}
	return p.waitFor(ctx, "readyok")
}

// NewGame clears engine state between unrelated positions.
func (p *Process) NewGame(ctx context.Context) error {
	if err := p.send("ucinewgame"); err != nil {
		return err
	}
	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if err = p.Ready(ctx); err == nil {
			return nil
		}
		obslog.L().Debug("uci_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryDelay):
		}
	}
	return err
}

// SearchRequest is one position plus the search bounds.
type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResult struct {
	Candidates []Candidate
	BestMove   string
	// Score is the last multipv 1 score seen before bestmove.
	Score Score
}

// Search runs one bounded search. On error the process state is unknown and
// the caller should discard it.
func (p *Process) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	goCmd, err := req.Limits.GoCommand()
	if err != nil {
		return SearchResult{}, err
	}
	p.searchMu.Lock()
	defer p.searchMu.Unlock()

	if err := p.send(positionCommand(req.FEN, req.Moves)); err != nil {
		return SearchResult{}, err
	}
	if err := p.send(goCmd); err != nil {
		return SearchResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, req.Limits.timeout())
	defer cancel()

	var acc lines
	for {
		line, err := p.next(ctx)
		if err != nil {
			obslog.L().Warn("uci_search_failed", zap.String("fen", req.FEN), zap.String("go", goCmd), zap.Error(err))
			return SearchResult{}, fmt.Errorf("search: %w", err)
		}
		if rest, ok := strings.CutPrefix(line, "bestmove"); ok {
			best := ""
			if f := strings.Fields(rest); len(f) > 0 {
				best = f[0]
			}
			return SearchResult{Candidates: acc.candidates(), BestMove: best, Score: acc.score}, nil
		}
		if in, ok := ParseInfo(line); ok {
			acc.add(in)
		}
	}
}

// Close asks the engine to quit and kills it after a short grace period.
// Repeated calls return the first result.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.writeMu.Lock()
		_, _ = io.WriteString(p.stdin, "quit\n")
		_ = p.stdin.Close()
		p.writeMu.Unlock()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()
		select {
		case err := <-done:
			p.closeErr = err
		case <-time.After(quitGrace):
			_ = p.cmd.Process.Kill()
			<-done
			p.closeErr = fmt.Errorf("engine did not quit within %s", quitGrace)
		}
	})
	return p.closeErr
}
