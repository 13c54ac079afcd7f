package generator

import (
	"sort"

	"github.com/cartoncaps/analytics/internal/types"
)

// Outcome is the result of one candidate record or status transition:
// either Emitted with a value, or Dropped with a reason.
type Outcome[T any] struct {
	value   T
	reason  types.DropReason
	emitted bool
}

// Emitted wraps a value that is kept
func Emitted[T any](value T) Outcome[T] {
	return Outcome[T]{value: value, emitted: true}
}

// Dropped records that a candidate was discarded
func Dropped[T any](reason types.DropReason) Outcome[T] {
	return Outcome[T]{reason: reason}
}

// IsEmitted reports whether the candidate was kept
func (o Outcome[T]) IsEmitted() bool {
	return o.emitted
}

// Value returns the kept value and true, or the zero value and false
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.emitted
}

// Reason returns the drop reason; empty when emitted
func (o Outcome[T]) Reason() types.DropReason {
	return o.reason
}

// StageStats counts emitted rows and drops for one stage
type StageStats struct {
	Stage   string                   `json:"stage"`
	Emitted int                      `json:"emitted"`
	Dropped map[types.DropReason]int `json:"dropped"`
}

func newStageStats(stage string) *StageStats {
	return &StageStats{Stage: stage, Dropped: make(map[types.DropReason]int)}
}

// Drop counts one dropped candidate
func (s *StageStats) Drop(reason types.DropReason) {
	s.Dropped[reason]++
}

// TotalDropped returns the number of drops across all reasons
func (s *StageStats) TotalDropped() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// Reasons returns the drop reasons in sorted order
func (s *StageStats) Reasons() []types.DropReason {
	reasons := make([]types.DropReason, 0, len(s.Dropped))
	for r := range s.Dropped {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

// observe counts an outcome and unwraps it
func observe[T any](stats *StageStats, o Outcome[T]) (T, bool) {
	if o.emitted {
		stats.Emitted++
	} else {
		stats.Drop(o.reason)
	}
	return o.value, o.emitted
}
