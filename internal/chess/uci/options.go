// Package uci drives UCI chess engines: process lifecycle, search, info parsing
// and a pool of warm processes per engine configuration.
package uci

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Options configures an engine process. Elo 0 leaves strength unlimited.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	Elo        int
}

// FullStrength is the configuration used for scoring positions.
func FullStrength(threads, hashMB int) Options {
	return Options{Threads: max(threads, 1), SkillLevel: 20, HashMB: max(hashMB, 16), MultiPV: 1}
}

func (o Options) validate() error {
	switch {
	case o.SkillLevel < 0 || o.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	case o.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", o.HashMB)
	case o.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", o.MultiPV)
	case o.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", o.Elo)
	}
	return nil
}

// key identifies processes that can be reused for o.
func (o Options) key() string {
	return fmt.Sprintf("t%d/s%d/h%d/pv%d/e%d", o.Threads, o.SkillLevel, o.HashMB, o.MultiPV, o.Elo)
}

// setoptions renders the option commands sent after uciok.
func (o Options) setoptions() []string {
	cmds := []string{
		"setoption name Threads value " + strconv.Itoa(max(o.Threads, 1)),
		"setoption name Hash value " + strconv.Itoa(o.HashMB),
		"setoption name Skill Level value " + strconv.Itoa(o.SkillLevel),
		"setoption name MultiPV value " + strconv.Itoa(o.MultiPV),
		"setoption name Move Overhead value 100",
	}
	if o.Elo > 0 {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true",
			"setoption name UCI_Elo value "+strconv.Itoa(o.Elo),
		)
	}
	return cmds
}

// Limits bounds one search. At least one field must be set.
type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// GoCommand renders the go command for l.
func (l Limits) GoCommand() (string, error) {
	var b strings.Builder
	b.WriteString("go")
	if l.Depth > 0 {
		b.WriteString(" depth " + strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		b.WriteString(" movetime " + strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		b.WriteString(" nodes " + strconv.Itoa(l.NodeCap))
	}
	if b.Len() == len("go") {
		return "", fmt.Errorf("no search limits specified")
	}
	return b.String(), nil
}

// timeout is how long to wait for bestmove before giving up on the process.
func (l Limits) timeout() time.Duration {
	if l.MoveTimeMillis > 0 {
		return 3 * time.Duration(l.MoveTimeMillis+2000) * time.Millisecond
	}
	if l.Depth > 0 {
		return min(max(time.Duration(l.Depth)*300*time.Millisecond, 6*time.Second), 20*time.Second)
	}
	return 6 * time.Second
}

// positionCommand renders "position startpos|fen <fen> [moves ...]".
func positionCommand(fen string, moves []string) string {
	cmd := "position startpos"
	if fen = strings.TrimSpace(fen); fen != "" && fen != "startpos" {
		cmd = "position fen " + fen
	}
	if len(moves) > 0 {
		cmd += " moves " + strings.Join(moves, " ")
	}
	return cmd
}
