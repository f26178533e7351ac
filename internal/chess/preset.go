package chess

import (
	"fmt"
	"sort"
	"strings"

	"github.com/park285/chessbench-go/internal/chess/uci"
)

// DifficultyPreset controls how strongly the reference peer plays.
type DifficultyPreset struct {
	Name             string
	SkillLevel       int
	Threads          int
	HashMB           int
	MoveTimeMillis   int
	NodeCap          int
	DepthCap         int
	MultiPV          int
	PrimaryChoices   int
	CandidateWeights []float64
	EvalNoise        int
	Elo              int
}

const defaultThreads = 2
const forlv8 = 6

var DefaultPresets = map[string]DifficultyPreset{
	"level1": {
		SkillLevel:       0,
		Threads:          defaultThreads,
		HashMB:           16,
		MoveTimeMillis:   20,
		DepthCap:         5,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.5, 0.3, 0.2},
		EvalNoise:        80,
		Elo:              600,
	},
	"level2": {
		SkillLevel:       0,
		Threads:          defaultThreads,
		HashMB:           16,
		MoveTimeMillis:   60,
		DepthCap:         6,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.6, 0.3, 0.1},
		EvalNoise:        60,
		Elo:              700,
	},
	"level3": {
		SkillLevel:       1,
		Threads:          defaultThreads,
		HashMB:           24,
		MoveTimeMillis:   80,
		DepthCap:         8,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.7, 0.2, 0.1},
		EvalNoise:        45,
		Elo:              800,
	},
	"level4": {
		SkillLevel:       3,
		Threads:          defaultThreads,
		HashMB:           32,
		MoveTimeMillis:   140,
		DepthCap:         10,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.65, 0.25, 0.1},
		EvalNoise:        30,
		Elo:              1000,
	},
	"level5": {
		SkillLevel:       7,
		Threads:          defaultThreads,
		HashMB:           48,
		MoveTimeMillis:   200,
		DepthCap:         12,
		MultiPV:          5,
		PrimaryChoices:   3,
		CandidateWeights: []float64{0.7, 0.2, 0.1},
		EvalNoise:        25,
		Elo:              1200,
	},
	"level6": {
		SkillLevel:       11,
		Threads:          defaultThreads,
		HashMB:           64,
		MoveTimeMillis:   300,
		DepthCap:         16,
		MultiPV:          2,
		PrimaryChoices:   2,
		CandidateWeights: []float64{0.8, 0.2},
		EvalNoise:        10,
		Elo:              1400,
	},
	"level7": {
		SkillLevel:       16,
		Threads:          defaultThreads,
		HashMB:           96,
		MoveTimeMillis:   500,
		DepthCap:         20,
		MultiPV:          2,
		PrimaryChoices:   2,
		CandidateWeights: []float64{0.85, 0.15},
		EvalNoise:        5,
		Elo:              1650,
	},
	// level8 plays at full strength.
	"level8": {
		SkillLevel:       20,
		Threads:          forlv8,
		HashMB:           128,
		MoveTimeMillis:   1000,
		DepthCap:         30,
		MultiPV:          1,
		PrimaryChoices:   1,
		CandidateWeights: []float64{1.0},
	},
}

var presetAliases = map[string]string{
	"beginner":     "level1",
	"intermediate": "level5",
	"advanced":     "level7",
	"master":       "level8",
}

func GetPreset(name string) (DifficultyPreset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := presetAliases[key]; ok {
		key = alias
	}
	p, ok := DefaultPresets[key]
	if !ok {
		return DifficultyPreset{}, fmt.Errorf("unknown chess preset: %s", name)
	}
	p.Name = key
	p.CandidateWeights = append([]float64(nil), p.CandidateWeights...)
	return p, nil
}

// PresetNames lists the configured presets in order.
func PresetNames() []string {
	names := make([]string, 0, len(DefaultPresets))
	for name := range DefaultPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ValidatePreset(p DifficultyPreset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case p.PrimaryChoices <= 0:
		return fmt.Errorf("primary choices must be > 0: %d", p.PrimaryChoices)
	case p.PrimaryChoices > p.MultiPV:
		return fmt.Errorf("primary choices (%d) must not exceed multipv (%d)", p.PrimaryChoices, p.MultiPV)
	case len(p.CandidateWeights) < p.PrimaryChoices:
		return fmt.Errorf("candidate weights (%d) must cover primary choices (%d)", len(p.CandidateWeights), p.PrimaryChoices)
	case p.MoveTimeMillis < 0 || p.NodeCap < 0 || p.DepthCap < 0:
		return fmt.Errorf("search limits must be >= 0")
	case p.EvalNoise < 0:
		return fmt.Errorf("eval noise must be >= 0: %d", p.EvalNoise)
	case p.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", p.Elo)
	}

	sum := 0.0
	for i := 0; i < p.PrimaryChoices; i++ {
		w := p.CandidateWeights[i]
		if w < 0 {
			return fmt.Errorf("candidate weight at index %d is negative: %f", i, w)
		}
		sum += w
	}
	if sum == 0 {
		return fmt.Errorf("candidate weights sum to zero")
	}
	return nil
}

func (p DifficultyPreset) options() uci.Options {
	return uci.Options{
		Threads:    p.Threads,
		SkillLevel: p.SkillLevel,
		HashMB:     p.HashMB,
		MultiPV:    p.MultiPV,
		Elo:        p.Elo,
	}
}

func (p DifficultyPreset) limits() uci.Limits {
	return uci.Limits{Depth: p.DepthCap, MoveTimeMillis: p.MoveTimeMillis, NodeCap: p.NodeCap}
}
