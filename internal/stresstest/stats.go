package stresstest

import (
	"sort"

	"github.com/studiowebux/chatstress/internal/eventlog"
)

// Stats aggregates turn latencies and outcomes across a run
type Stats struct {
	TotalTurns        int
	CompletedTurns    int
	FinalCount        int
	TimeoutCount      int
	IntermediateCount int
	Durations         []int64 // For percentile calculation
	TotalDurationMs   int64
	MinDurationMs     int64
	MaxDurationMs     int64
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		Durations:     make([]int64, 0, 256),
		MinDurationMs: -1,
		MaxDurationMs: -1,
	}
}

// AddTurn adds one resolved turn to the statistics
func (s *Stats) AddTurn(durationMs int64, timedOut bool) {
	s.CompletedTurns++
	s.TotalDurationMs += durationMs
	s.Durations = append(s.Durations, durationMs)

	if timedOut {
		s.TimeoutCount++
	} else {
		s.FinalCount++
	}

	if s.MinDurationMs == -1 || durationMs < s.MinDurationMs {
		s.MinDurationMs = durationMs
	}
	if s.MaxDurationMs == -1 || durationMs > s.MaxDurationMs {
		s.MaxDurationMs = durationMs
	}
}

// AddSession folds a finished session into the statistics
func (s *Stats) AddSession(sess *Session) {
	s.TotalTurns += sess.TotalTurns
	s.IntermediateCount += sess.Intermediates
	for _, turn := range sess.Turns {
		s.AddTurn(turn.Latency.Milliseconds(), turn.Outcome == eventlog.OutcomeTimeout)
	}
}

// AvgDurationMs returns the average duration in milliseconds
func (s *Stats) AvgDurationMs() float64 {
	if s.CompletedTurns == 0 {
		return 0
	}
	return float64(s.TotalDurationMs) / float64(s.CompletedTurns)
}

// Min returns the minimum duration, or 0 if no results
func (s *Stats) Min() int64 {
	if s.MinDurationMs == -1 {
		return 0
	}
	return s.MinDurationMs
}

// Max returns the maximum duration, or 0 if no results
func (s *Stats) Max() int64 {
	if s.MaxDurationMs == -1 {
		return 0
	}
	return s.MaxDurationMs
}

// Percentile calculates the percentile value (p should be between 0 and 100)
func (s *Stats) Percentile(p float64) int64 {
	if len(s.Durations) == 0 {
		return 0
	}

	sorted := make([]int64, len(s.Durations))
	copy(sorted, s.Durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between lower and upper
	weight := index - float64(lower)
	return int64(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

// P50 returns the 50th percentile (median)
func (s *Stats) P50() int64 {
	return s.Percentile(50)
}

// P95 returns the 95th percentile
func (s *Stats) P95() int64 {
	return s.Percentile(95)
}

// P99 returns the 99th percentile
func (s *Stats) P99() int64 {
	return s.Percentile(99)
}

// TimeoutRate returns the share of turns that timed out as a percentage
func (s *Stats) TimeoutRate() float64 {
	if s.CompletedTurns == 0 {
		return 0
	}
	return float64(s.TimeoutCount) / float64(s.CompletedTurns) * 100
}

// Progress returns the completion progress as a percentage
func (s *Stats) Progress() float64 {
	if s.TotalTurns == 0 {
		return 0
	}
	return float64(s.CompletedTurns) / float64(s.TotalTurns) * 100
}
