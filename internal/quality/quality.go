// Package quality turns consecutive evaluator scores into per-move loss samples
// and keeps them bucketed by how the position stood for the mover.
package quality

import (
	"encoding/json"
	"math"

	"github.com/mitchellh/copystructure"
	"gonum.org/v1/gonum/stat"

	"github.com/park285/chessbench-go/internal/domain"
)

type Bucket string

const (
	Overall Bucket = "Overall"
	Equal   Bucket = "Equal"
	Winning Bucket = "Winning"
	Losing  Bucket = "Losing"
)

// Buckets lists every bucket in summary order.
var Buckets = []Bucket{Overall, Equal, Winning, Losing}

// Threshold is the pawn margin separating Equal from Winning/Losing.
const Threshold = 1.0

// Sample is the outcome of classifying a single move.
type Sample struct {
	Loss   float64
	Bucket Bucket
}

// Classify computes the mover's loss sample. before and after are in the
// reference (White) perspective; a positive loss means the mover got worse.
func Classify(before, after float64, mover domain.Role) Sample {
	delta := after - before
	view := before
	loss := -delta
	if mover != domain.ReferenceRole {
		view = -before
		loss = delta
	}
	return Sample{Loss: loss, Bucket: bucketFor(view)}
}

func bucketFor(view float64) Bucket {
	switch {
	case math.Abs(view) <= Threshold:
		return Equal
	case view > Threshold:
		return Winning
	default:
		return Losing
	}
}

// PlayerBuckets holds the samples of one role.
type PlayerBuckets map[Bucket][]float64

func newPlayerBuckets() PlayerBuckets {
	pb := make(PlayerBuckets, len(Buckets))
	for _, b := range Buckets {
		pb[b] = []float64{}
	}
	return pb
}

// Aggregator accumulates samples per role. It is not safe for concurrent use.
type Aggregator struct {
	players map[domain.Role]PlayerBuckets
}

func NewAggregator() *Aggregator {
	a := &Aggregator{players: make(map[domain.Role]PlayerBuckets, len(domain.Roles))}
	for _, r := range domain.Roles {
		a.players[r] = newPlayerBuckets()
	}
	return a
}

// Record classifies a move and appends the sample to Overall and its bucket.
func (a *Aggregator) Record(before, after float64, mover domain.Role) Sample {
	s := Classify(before, after, mover)
	pb := a.players[mover]
	pb[Overall] = append(pb[Overall], s.Loss)
	pb[s.Bucket] = append(pb[s.Bucket], s.Loss)
	return s
}

// Samples returns a copy of one role's bucket.
func (a *Aggregator) Samples(r domain.Role, b Bucket) []float64 {
	return append([]float64(nil), a.players[r][b]...)
}

// Snapshot returns a deep copy of all buckets.
func (a *Aggregator) Snapshot() map[domain.Role]PlayerBuckets {
	return copystructure.Must(copystructure.Copy(a.players)).(map[domain.Role]PlayerBuckets)
}

// Mean is a bucket average that may be absent.
type Mean struct {
	value float64
	ok    bool
}

// Value reports the mean and whether the bucket had any samples.
func (m Mean) Value() (float64, bool) { return m.value, m.ok }

func (m Mean) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

// Summary maps role -> bucket -> mean.
type Summary map[domain.Role]map[Bucket]Mean

// Summary computes the mean of every bucket. Empty buckets report no value.
func (a *Aggregator) Summary() Summary {
	out := make(Summary, len(a.players))
	for _, r := range domain.Roles {
		means := make(map[Bucket]Mean, len(Buckets))
		for _, b := range Buckets {
			samples := a.players[r][b]
			if len(samples) == 0 {
				means[b] = Mean{}
				continue
			}
			means[b] = Mean{value: stat.Mean(samples, nil), ok: true}
		}
		out[r] = means
	}
	return out
}
