package generator

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
	"github.com/cartoncaps/analytics/internal/validate"
)

func TestOutcome(t *testing.T) {
	kept := Emitted(42)
	v, ok := kept.Value()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.True(t, kept.IsEmitted())
	assert.Empty(t, kept.Reason())

	dropped := Dropped[int](types.DropScanFailed)
	v, ok = dropped.Value()
	assert.False(t, ok)
	assert.Zero(t, v)
	assert.Equal(t, types.DropScanFailed, dropped.Reason())
}

func TestStageStats(t *testing.T) {
	stats := newStageStats(StageEvents)

	_, ok := observe(stats, Emitted("x"))
	assert.True(t, ok)
	_, ok = observe(stats, Dropped[string](types.DropNotSampled))
	assert.False(t, ok)
	stats.Drop(types.DropAfterWindowEnd)
	stats.Drop(types.DropNotSampled)

	assert.Equal(t, 1, stats.Emitted)
	assert.Equal(t, 3, stats.TotalDropped())
	assert.Equal(t, 2, stats.Dropped[types.DropNotSampled])
	assert.Equal(t, []types.DropReason{types.DropAfterWindowEnd, types.DropNotSampled}, stats.Reasons())
}

func TestChainOutcome(t *testing.T) {
	floor := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ceiling := floor.Add(48 * time.Hour)

	tests := []struct {
		name    string
		ceiling *time.Time
		at      time.Time
		reason  types.DropReason
	}{
		{"between floor and ceiling", &ceiling, floor.Add(time.Hour), ""},
		{"equal to floor", &ceiling, floor, ""},
		{"equal to ceiling", &ceiling, ceiling, ""},
		{"no ceiling", nil, floor.Add(30 * 24 * time.Hour), ""},
		{"before floor", &ceiling, floor.Add(-time.Second), types.DropOutOfCausalOrder},
		{"after ceiling", &ceiling, ceiling.Add(time.Second), types.DropOutOfCausalOrder},
		{"before window", nil, defaultWindow.Start.Add(-time.Hour), types.DropBeforeWindowStart},
		{"after window", nil, defaultWindow.End.Add(time.Second), types.DropAfterWindowEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ChainOutcome(defaultWindow, floor, tt.ceiling, tt.at)
			if tt.reason == "" {
				at, ok := o.Value()
				require.True(t, ok)
				assert.Equal(t, tt.at, at)
				return
			}
			assert.False(t, o.IsEmitted())
			assert.Equal(t, tt.reason, o.Reason())
		})
	}
}

func TestGenerateEvents_ConvertedChains(t *testing.T) {
	params := smallParams(17)
	params.Referrals = 200
	result := mustGenerate(t, params)
	d := result.Dataset

	awards := make(map[int64]int)
	for _, e := range d.Events {
		if e.ReferralID != nil && e.EventType == types.EventRewardAwarded {
			awards[*e.ReferralID]++
			assert.Contains(t, []string{string(types.RewardReferrerBonus), string(types.RewardReferredBonus)}, e.Metadata["reward_type"])
		}
		if e.ReferralID != nil && e.EventType == types.EventInstall {
			assert.Equal(t, "referral", e.Metadata["source"])
		}
		if e.ReferralID == nil {
			assert.NotContains(t, []types.EventType{types.EventInviteSent, types.EventRewardAwarded, types.EventRewardRedeemed}, e.EventType)
		}
	}

	for _, r := range d.Referrals {
		if r.IsConverted() {
			assert.Equal(t, 2, awards[r.ReferralID], "referral %d", r.ReferralID)
		} else {
			assert.Zero(t, awards[r.ReferralID], "referral %d", r.ReferralID)
		}
	}
}

func TestGenerate_InvariantsHoldForRandomSeeds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	if testing.Short() {
		parameters.MinSuccessfulTests = 5
	}
	properties := gopter.NewProperties(parameters)

	properties.Property("generated datasets pass every consistency check", prop.ForAll(
		func(seed uint64, users int, referrals int) bool {
			params := smallParams(seed)
			params.Users = users
			params.Referrals = referrals
			result, err := Generate(params, nil)
			if err != nil {
				return false
			}
			bound := validate.DefaultDeviceCollisionBound(result.Funnel.Converted, DeviceReuseRate)
			return validate.NewConsistencyChecker(bound).CheckDataset(result.Dataset).Passed
		},
		gen.UInt64(),
		gen.IntRange(1, 80),
		gen.IntRange(0, 120),
	))

	properties.TestingRun(t)
}

func TestGenerateEvents_ReferralApplicationsNotBoundByConversion(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full-size generation in short mode")
	}

	params := Params{
		Seed:      42,
		Window:    defaultWindow,
		Schools:   50,
		Users:     1000,
		Products:  100,
		Referrals: 1000,
		Purchases: 10000,
	}
	d := mustGenerate(t, params).Dataset

	installs := make(map[int64]time.Time)
	applied := make(map[int64]time.Time)
	for _, e := range d.Events {
		if e.ReferralID == nil {
			continue
		}
		switch e.EventType {
		case types.EventInstall:
			installs[*e.ReferralID] = e.EventAt
		case types.EventReferralApplied:
			applied[*e.ReferralID] = e.EventAt
		}
	}

	late, afterConversion := 0, 0
	for _, r := range d.Referrals {
		if !r.IsConverted() {
			continue
		}
		// install is at most 24h and referral_applied at most 96h after the invite
		if !r.SentAt.Add(24 * time.Hour).After(defaultWindow.End) {
			assert.Contains(t, installs, r.ReferralID, "referral %d lost its install", r.ReferralID)
		}
		if !r.SentAt.Add(96 * time.Hour).After(defaultWindow.End) {
			assert.Contains(t, applied, r.ReferralID, "referral %d lost its referral_applied", r.ReferralID)
		}
		at, ok := applied[r.ReferralID]
		if !ok {
			continue
		}
		if at.Sub(installs[r.ReferralID]) > 48*time.Hour {
			late++
		}
		if at.After(*r.ConvertedAt) {
			afterConversion++
		}
	}
	assert.Positive(t, late, "no application more than 48h after install")
	assert.Positive(t, afterConversion)
}

func TestPurchaseEvents_Drops(t *testing.T) {
	params := smallParams(19)
	params.Window = models.Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   defaultWindow.End,
	}

	tests := []struct {
		name          string
		offset        time.Duration
		droppedBefore func(n, sampled int) int
	}{
		// scan start and incentive view both precede the window start
		{"purchase right after window start", 30 * time.Second, func(n, sampled int) int { return n + sampled }},
		// 1-5 minutes and 5-60 minutes before still fall inside the window
		{"purchase two hours into the window", 2 * time.Hour, func(n, sampled int) int { return 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(params, logging.NewNopLogger())
			require.NoError(t, err)

			const n = 5000
			for i := 0; i < n; i++ {
				p := &models.Purchase{PurchaseID: int64(i + 1), UserID: 1}
				p.SetPurchasedAt(params.Window.Start.Add(tt.offset))
				g.purchases = append(g.purchases, p)
			}

			stream := &eventStream{stats: newStageStats(StageEvents)}
			g.purchaseEvents(stream)
			stats := stream.stats

			counts := make(map[types.EventType]int)
			for _, e := range stream.events {
				counts[e.EventType]++
				assert.True(t, params.Window.Contains(e.EventAt), "%s at %s", e.EventType, e.EventAt)
			}

			sampled := n - stats.Dropped[types.DropNotSampled]
			assert.Equal(t, tt.droppedBefore(n, sampled), stats.Dropped[types.DropBeforeWindowStart])
			assert.Equal(t, n, counts[types.EventReceiptScanCompleted]+stats.Dropped[types.DropScanFailed])
			assert.Equal(t, n-tt.droppedBefore(n, 0), counts[types.EventReceiptScanStarted])

			completed := float64(counts[types.EventReceiptScanCompleted]) / n
			assert.InDelta(t, scanCompletedRate, completed, 0.03, "scan completion rate %.3f", completed)
			viewed := float64(sampled) / n
			assert.InDelta(t, incentiveRate, viewed, 0.03, "incentive rate %.3f", viewed)
		})
	}
}

func TestUserBaselineEvents_AppOpensFollowCreation(t *testing.T) {
	result := mustGenerate(t, smallParams(23))
	d := result.Dataset

	opens := 0
	for _, e := range d.Events {
		if e.EventType != types.EventAppOpen {
			continue
		}
		opens++
		u := d.Users[e.UserID-1]
		assert.False(t, e.EventAt.Before(u.CreatedAt), "app_open %d before its user", e.EventID)
		// day offset is drawn from 0-30, plus up to 23h59m
		assert.Less(t, e.EventAt.Sub(u.CreatedAt), (appOpenSpanDays+1)*24*time.Hour, "app_open %d", e.EventID)
		assert.Nil(t, e.ReferralID)
	}
	assert.Positive(t, opens)
}
