package entropy

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

func TestSameSeedSameStream(t *testing.T) {
	a := NewSource(42)
	b := NewSource(42)

	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
	assert.Equal(t, a.DeviceID(), b.DeviceID())

	c := NewSource(43)
	assert.NotEqual(t, NewSource(42).Float64(), c.Float64())
}

func TestWeightedIndexInvalidWeights(t *testing.T) {
	s := NewSource(1)

	tests := []struct {
		name    string
		weights []float64
	}{
		{"empty", nil},
		{"all zero", []float64{0, 0, 0}},
		{"negative", []float64{1, -1}},
		{"nan", []float64{1, math.NaN()}},
		{"inf", []float64{math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.WeightedIndex(tt.weights)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidWeights))
		})
	}
}

func TestWeightedChoiceLengthMismatch(t *testing.T) {
	s := NewSource(1)
	_, err := WeightedChoice(s, []string{"a", "b"}, []float64{1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidWeights))

	_, err = NewDistribution([]int{1, 2, 3}, []float64{1, 1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidWeights))
}

func TestWeightedChoiceSkipsZeroWeights(t *testing.T) {
	s := NewSource(7)
	for i := 0; i < 1000; i++ {
		v, err := WeightedChoice(s, []string{"never", "always", "never"}, []float64{0, 3, 0})
		require.NoError(t, err)
		require.Equal(t, "always", v)
	}
}

func TestWeightedChoiceNormalizes(t *testing.T) {
	s := NewSource(42)
	d := MustDistribution([]string{"a", "b"}, []float64{30, 10})

	counts := map[string]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		counts[d.Sample(s)]++
	}

	assert.InDelta(t, 0.75, float64(counts["a"])/n, 0.02)
	assert.InDelta(t, 0.25, float64(counts["b"])/n, 0.02)
}

func TestUniformDatetimeDegenerate(t *testing.T) {
	s := NewSource(1)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, start, s.UniformDatetime(start, start))
	assert.Equal(t, start, s.UniformDatetime(start, start.Add(-time.Hour)))
}

func TestUniformDatetimeInsideClosedInterval(t *testing.T) {
	properties := gopter.NewProperties(nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("sample lies in [start, end]", prop.ForAll(
		func(seed uint64, spanSeconds int64) bool {
			s := NewSource(seed)
			end := start.Add(time.Duration(spanSeconds) * time.Second)
			got := s.UniformDatetime(start, end)
			return !got.Before(start) && !got.After(end)
		},
		gen.UInt64(),
		gen.Int64Range(0, 365*24*3600),
	))

	properties.TestingRun(t)
}

func TestIntRangeInclusive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("IntRange stays in [lo, hi]", prop.ForAll(
		func(seed uint64, lo, width int) bool {
			s := NewSource(seed)
			v := s.IntRange(lo, lo+width)
			return v >= lo && v <= lo+width
		},
		gen.UInt64(),
		gen.IntRange(-1000, 1000),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestParetoLowerBound(t *testing.T) {
	s := NewSource(3)
	for i := 0; i < 10000; i++ {
		require.GreaterOrEqual(t, s.Pareto(2.5), 1.0)
	}
}

func TestIdentifierFormats(t *testing.T) {
	s := NewSource(42)

	device := regexp.MustCompile(`^dev_[a-z0-9]{16}$`)
	code := regexp.MustCompile(`^CC00017[A-Z0-9]{5}$`)
	email := regexp.MustCompile(`^[a-z]{5,10}[0-9]{1,4}@(gmail\.com|yahoo\.com|outlook\.com|icloud\.com|proton\.me)$`)

	for i := 0; i < 200; i++ {
		assert.Regexp(t, device, s.DeviceID())
		assert.Regexp(t, code, s.ReferralCode(17))
		assert.Regexp(t, email, s.Email())
	}
}

func TestUniqueEmailRejectsTaken(t *testing.T) {
	// Replay the stream to learn the first candidate, then mark it taken.
	first := NewSource(9).Email()

	taken := map[string]bool{strings.ToLower(first): true}
	got := NewSource(9).UniqueEmail(func(e string) bool { return taken[e] })

	assert.NotEqual(t, strings.ToLower(first), strings.ToLower(got))
}
