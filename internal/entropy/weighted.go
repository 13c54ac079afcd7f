package entropy

import (
	"fmt"
	"math"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

// WeightedIndex samples an index with probability proportional to its weight.
// Weights need not sum to 1. It fails with ErrInvalidWeights when the vector is
// empty, contains a negative or non-finite weight, or sums to zero.
func (s *Source) WeightedIndex(weights []float64) (int, error) {
	total, err := weightTotal(weights)
	if err != nil {
		return 0, err
	}

	target := s.rng.Float64() * total
	cumulative := 0.0
	last := 0
	for i, w := range weights {
		if w == 0 {
			continue
		}
		cumulative += w
		last = i
		if target < cumulative {
			return i, nil
		}
	}
	// float rounding can leave target == total
	return last, nil
}

// WeightedChoice samples one of items with probability proportional to weights.
// It fails with ErrInvalidWeights when the lengths differ or the weights are unusable.
func WeightedChoice[T any](s *Source, items []T, weights []float64) (T, error) {
	var zero T
	if len(items) != len(weights) {
		return zero, apperrors.NewInvalidWeightsError(
			fmt.Sprintf("%d items but %d weights", len(items), len(weights)))
	}
	i, err := s.WeightedIndex(weights)
	if err != nil {
		return zero, err
	}
	return items[i], nil
}

// Distribution is a fixed categorical distribution validated once and sampled many times
type Distribution[T any] struct {
	items   []T
	weights []float64
}

// NewDistribution builds a distribution, failing with ErrInvalidWeights on bad input
func NewDistribution[T any](items []T, weights []float64) (*Distribution[T], error) {
	if len(items) != len(weights) {
		return nil, apperrors.NewInvalidWeightsError(
			fmt.Sprintf("%d items but %d weights", len(items), len(weights)))
	}
	if _, err := weightTotal(weights); err != nil {
		return nil, err
	}
	return &Distribution[T]{items: items, weights: weights}, nil
}

// MustDistribution is NewDistribution for package-level tables known to be valid
func MustDistribution[T any](items []T, weights []float64) *Distribution[T] {
	d, err := NewDistribution(items, weights)
	if err != nil {
		panic(err)
	}
	return d
}

// Sample draws one item
func (d *Distribution[T]) Sample(s *Source) T {
	// weights were validated in NewDistribution
	i, _ := s.WeightedIndex(d.weights)
	return d.items[i]
}

// Items returns the support of the distribution
func (d *Distribution[T]) Items() []T {
	return d.items
}

func weightTotal(weights []float64) (float64, error) {
	if len(weights) == 0 {
		return 0, apperrors.NewInvalidWeightsError("empty weight vector")
	}
	total := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return 0, apperrors.NewInvalidWeightsError(fmt.Sprintf("weight %d is %v", i, w))
		}
		total += w
	}
	if total == 0 {
		return 0, apperrors.NewInvalidWeightsError("all weights are zero")
	}
	return total, nil
}
