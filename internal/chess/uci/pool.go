package uci

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("uci: pool closed")

type PoolConfig struct {
	BinaryPath string
	// PerOptions caps live processes per Options value. Default 2..4 by CPU.
	PerOptions int
}

// Pool keeps warm engine processes per Options value.
type Pool struct {
	binaryPath string
	perOptions int

	mu     sync.Mutex
	closed bool
	groups map[string]*group
}

type group struct {
	opt   Options
	slots chan struct{}

	mu   sync.Mutex
	idle []*Process
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	resolved, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	per := cfg.PerOptions
	if per <= 0 {
		per = min(max(runtime.NumCPU(), 2), 4)
	}
	return &Pool{binaryPath: resolved, perOptions: per, groups: make(map[string]*group)}, nil
}

// Do runs fn with a ready process for opt. The process is returned to the pool
// when fn succeeds and discarded when it fails.
func (p *Pool) Do(ctx context.Context, opt Options, fn func(*Process) error) error {
	g, err := p.group(opt)
	if err != nil {
		return err
	}
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.slots }()

	proc, err := p.take(ctx, g)
	if err != nil {
		return err
	}
	err = fn(proc)
	p.giveBack(g, proc, err)
	return err
}

func (p *Pool) group(opt Options) (*group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	key := opt.key()
	g, ok := p.groups[key]
	if !ok {
		g = &group{opt: opt, slots: make(chan struct{}, p.perOptions)}
		p.groups[key] = g
	}
	return g, nil
}

// take pops an idle process that still answers isready, or starts a new one.
func (p *Pool) take(ctx context.Context, g *group) (*Process, error) {
	for {
		g.mu.Lock()
		n := len(g.idle)
		if n == 0 {
			g.mu.Unlock()
			return Start(ctx, p.binaryPath, g.opt)
		}
		proc := g.idle[n-1]
		g.idle = g.idle[:n-1]
		g.mu.Unlock()

		if err := proc.Ready(ctx); err == nil {
			return proc, nil
		}
		_ = proc.Close()
	}
}

func (p *Pool) giveBack(g *group, proc *Process, err error) {
	p.mu.Lock()
	if err == nil && !p.closed {
		g.mu.Lock()
		g.idle = append(g.idle, proc)
		g.mu.Unlock()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = proc.Close()
}

// Close stops every idle process. Processes in use stop when their Do returns.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	groups := make([]*group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.mu.Unlock()

	var errs []error
	for _, g := range groups {
		g.mu.Lock()
		idle := g.idle
		g.idle = nil
		g.mu.Unlock()
		for _, proc := range idle {
			if err := proc.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
