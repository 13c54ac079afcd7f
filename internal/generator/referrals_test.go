package generator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/entropy"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/types"
)

func TestAbuseGuard(t *testing.T) {
	tests := []struct {
		name     string
		referred string
		referrer string
		want     types.DropReason
	}{
		{"same email", "mary@gmail.com", "mary@gmail.com", types.DropSelfReferral},
		{"same email ignoring case", "X@a.com", "x@A.com", types.DropSelfReferral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(smallParams(3), logging.NewNopLogger())
			require.NoError(t, err)

			assert.Equal(t, tt.want, g.abuseGuard(tt.referred, tt.referrer))
			// a self-referral is decided without drawing the penalty
			assert.Equal(t, entropy.NewSource(3).Float64(), g.src.Float64())
		})
	}
}

func TestAbuseGuard_PenaltyRate(t *testing.T) {
	g, err := New(smallParams(8), logging.NewNopLogger())
	require.NoError(t, err)

	const trials = 100000
	penalized := 0
	for i := 0; i < trials; i++ {
		switch reason := g.abuseGuard("friend@gmail.com", "mary@gmail.com"); reason {
		case types.DropAbusePenalty:
			penalized++
		case "":
		default:
			t.Fatalf("unexpected reason %q", reason)
		}
	}

	rate := float64(penalized) / trials
	assert.InDelta(t, AbusePenaltyRate, rate, 0.002, "penalty rate %.4f", rate)
}

func TestMaterializeUser_LocalityAndDeviceReuse(t *testing.T) {
	g, err := New(smallParams(12), logging.NewNopLogger())
	require.NoError(t, err)
	_, err = g.GenerateSchools(20)
	require.NoError(t, err)
	_, err = g.GenerateUsers(100)
	require.NoError(t, err)
	require.NoError(t, g.pop.Open(StageReferrals))
	defer g.pop.Freeze()

	referrer := g.pop.Users()[0]
	collisionsBefore := g.pop.DeviceCollisions()

	const trials = 20000
	sameSchool := 0
	for i := 0; i < trials; i++ {
		u, err := g.materializeUser(referrer, fmt.Sprintf("referred%d@example.com", i), referrer.CreatedAt)
		require.NoError(t, err)
		if u.SchoolID == referrer.SchoolID {
			sameSchool++
		}
	}

	// drifting users pick uniformly over all schools, the referrer's included
	wantLocal := SchoolLocalityRate + (1-SchoolLocalityRate)/20
	assert.InDelta(t, wantLocal, float64(sameSchool)/trials, 0.02)

	reuse := float64(g.funnel.DeviceReused) / trials
	assert.InDelta(t, DeviceReuseRate, reuse, 0.003, "device reuse rate %.4f", reuse)
	assert.Equal(t, collisionsBefore+g.funnel.DeviceReused, g.pop.DeviceCollisions())
	assert.Equal(t, trials, g.funnel.MaterializedUser)
}
