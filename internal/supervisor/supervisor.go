// Package supervisor starts peer processes, waits until they answer, and tears
// them down exactly once.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrReadinessTimeout is returned when a peer does not become ready in time or
// exits before it does.
var ErrReadinessTimeout = errors.New("supervisor: peer not ready")

// PeerSpec describes one process and the endpoint it will serve.
type PeerSpec struct {
	Name     string
	Command  string
	Args     []string
	Env      []string // appended to the parent environment
	Dir      string
	Endpoint string
}

// Readiness polls an endpoint until it answers. *a2a.Client implements it.
type Readiness interface {
	WaitReady(ctx context.Context, endpoint string, timeout time.Duration) error
}

type process struct {
	spec PeerSpec
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

type Supervisor struct {
	ready        Readiness
	readyTimeout time.Duration
	grace        time.Duration
	output       io.Writer
	logger       *zap.Logger

	mu    sync.Mutex
	procs []*process
	once  sync.Once
}

type Option func(*Supervisor)

// WithGrace sets how long Shutdown waits after SIGTERM before SIGKILL.
func WithGrace(d time.Duration) Option { return func(s *Supervisor) { s.grace = d } }

// WithOutput redirects child stdout and stderr. Default os.Stderr.
func WithOutput(w io.Writer) Option { return func(s *Supervisor) { s.output = w } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(ready Readiness, readyTimeout time.Duration, opts ...Option) *Supervisor {
	s := &Supervisor{
		ready:        ready,
		readyTimeout: readyTimeout,
		grace:        5 * time.Second,
		output:       os.Stderr,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns every spec and waits for all of them concurrently. If any
// peer fails to come up, everything started so far is shut down.
func (s *Supervisor) Start(ctx context.Context, specs []PeerSpec) error {
	started := make([]*process, 0, len(specs))
	for _, spec := range specs {
		p, err := s.spawn(spec)
		if err != nil {
			s.Shutdown()
			return err
		}
		started = append(started, p)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range started {
		g.Go(func() error { return s.waitReady(gctx, p) })
	}
	if err := g.Wait(); err != nil {
		s.Shutdown()
		return err
	}
	return nil
}

func (s *Supervisor) spawn(spec PeerSpec) (*process, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir
	cmd.Stdout = s.output
	cmd.Stderr = s.output
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	p := &process{spec: spec, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	s.logger.Info("peer_started", zap.String("name", spec.Name), zap.Int("pid", cmd.Process.Pid), zap.String("endpoint", spec.Endpoint))
	return p, nil
}

// waitReady polls p's endpoint, giving up early if the process exits.
func (s *Supervisor) waitReady(ctx context.Context, p *process) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.ready.WaitReady(ctx, p.spec.Endpoint, s.readyTimeout)
	if err == nil {
		return nil
	}
	select {
	case <-p.done:
		return fmt.Errorf("%w: %s exited: %v", ErrReadinessTimeout, p.spec.Name, p.err)
	default:
	}
	return fmt.Errorf("%w: %s at %s: %w", ErrReadinessTimeout, p.spec.Name, p.spec.Endpoint, err)
}

// Shutdown terminates every started process group. Only the first call acts.
func (s *Supervisor) Shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		procs := append([]*process(nil), s.procs...)
		s.mu.Unlock()

		var wg sync.WaitGroup
		for _, p := range procs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.stop(p)
			}()
		}
		wg.Wait()
	})
}

func (s *Supervisor) stop(p *process) {
	select {
	case <-p.done:
		return
	default:
	}
	pid := p.cmd.Process.Pid
	if err := signalGroup(p.cmd, terminateSignal); err != nil {
		s.logger.Warn("peer_terminate_failed", zap.String("name", p.spec.Name), zap.Int("pid", pid), zap.Error(err))
	}
	t := time.NewTimer(s.grace)
	defer t.Stop()
	select {
	case <-p.done:
		s.logger.Info("peer_stopped", zap.String("name", p.spec.Name), zap.Int("pid", pid))
		return
	case <-t.C:
	}
	if err := signalGroup(p.cmd, killSignal); err != nil {
		s.logger.Warn("peer_kill_failed", zap.String("name", p.spec.Name), zap.Int("pid", pid), zap.Error(err))
	}
	<-p.done
	s.logger.Warn("peer_killed", zap.String("name", p.spec.Name), zap.Int("pid", pid))
}

// Running reports how many started processes have not exited.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.procs {
		select {
		case <-p.done:
		default:
			n++
		}
	}
	return n
}
