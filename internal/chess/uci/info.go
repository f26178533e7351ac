package uci

import (
	"sort"
	"strconv"
	"strings"
)

// mateCP is the centipawn stand-in for a forced mate in candidate lists.
const mateCP = 30000

// Score is an engine score from the side to move. Mate is set for forced mates:
// positive when the side to move mates, negative (or zero) when it is mated.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
	Depth  int
	set    bool
}

func (s Score) Valid() bool { return s.set }

// Centipawns folds mate scores into ±mateCP.
func (s Score) Centipawns() int {
	if !s.IsMate {
		return s.CP
	}
	if s.Mate > 0 {
		return mateCP
	}
	return -mateCP
}

// Candidate is one principal variation reported under MultiPV.
type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

// Info is the part of an "info" line the harness uses.
type Info struct {
	MultiPV int
	Score   Score
	PV      []string
}

// ParseInfo reads depth, multipv, score and pv from an info line. ok is false
// for lines carrying neither a score nor a pv (strings, currmove updates).
func ParseInfo(line string) (Info, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return Info{}, false
	}
	in := Info{MultiPV: 1}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			return Info{}, false
		case "depth":
			if i+1 < len(fields) {
				in.Score.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					in.MultiPV = v
				}
				i++
			}
		case "score":
			if i+2 >= len(fields) {
				return Info{}, false
			}
			v, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return Info{}, false
			}
			switch fields[i+1] {
			case "cp":
				in.Score.CP = v
			case "mate":
				in.Score.Mate, in.Score.IsMate = v, true
			default:
				return Info{}, false
			}
			in.Score.set = true
			i += 2
		case "pv":
			in.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		}
	}
	if !in.Score.set && len(in.PV) == 0 {
		return Info{}, false
	}
	return in, true
}

// Candidate returns the line as a candidate move, if it carries a pv.
func (in Info) Candidate() (Candidate, bool) {
	if len(in.PV) == 0 {
		return Candidate{}, false
	}
	return Candidate{Move: in.PV[0], EvalCP: in.Score.Centipawns(), Principal: in.PV}, true
}

// lines accumulates info output for one search; the latest line per multipv wins.
type lines struct {
	byRank map[int]Candidate
	score  Score
}

func (l *lines) add(in Info) {
	if c, ok := in.Candidate(); ok {
		if l.byRank == nil {
			l.byRank = make(map[int]Candidate)
		}
		l.byRank[in.MultiPV] = c
	}
	if in.MultiPV == 1 && in.Score.Valid() {
		l.score = in.Score
	}
}

func (l *lines) candidates() []Candidate {
	if len(l.byRank) == 0 {
		return nil
	}
	ranks := make([]int, 0, len(l.byRank))
	for r := range l.byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	out := make([]Candidate, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, l.byRank[r])
	}
	return out
}
