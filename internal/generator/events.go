package generator

import (
	"time"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

const (
	redeemRate        = 0.75
	scanCompletedRate = 0.88
	incentiveRate     = 0.35
	appOpenSpanDays   = 30
)

var (
	appOpenCounts = entropy.MustDistribution(
		[]int{0, 1, 2, 3, 5, 8, 12},
		[]float64{0.10, 0.25, 0.22, 0.18, 0.15, 0.07, 0.03},
	)

	// skewed toward <=48h with some mass beyond, so both eligible and ineligible applications exist
	applyDelayHours = entropy.MustDistribution(
		[]int{2, 6, 12, 24, 36, 48, 72},
		[]float64{0.20, 0.18, 0.16, 0.18, 0.14, 0.10, 0.04},
	)
)

// windowOutcome drops timestamps outside the analytics window
func windowOutcome(window models.Window, at time.Time) Outcome[time.Time] {
	if at.Before(window.Start) {
		return Dropped[time.Time](types.DropBeforeWindowStart)
	}
	if at.After(window.End) {
		return Dropped[time.Time](types.DropAfterWindowEnd)
	}
	return Emitted(at)
}

// ChainOutcome gates one referral-linked event. It must lie in the window, not
// precede floor (the latest earlier chain step), and not follow ceiling when set.
func ChainOutcome(window models.Window, floor time.Time, ceiling *time.Time, at time.Time) Outcome[time.Time] {
	if o := windowOutcome(window, at); !o.IsEmitted() {
		return o
	}
	if at.Before(floor) || (ceiling != nil && at.After(*ceiling)) {
		return Dropped[time.Time](types.DropOutOfCausalOrder)
	}
	return Emitted(at)
}

// eventStream assigns event ids in emission order
type eventStream struct {
	events []*models.Event
	stats  *StageStats
}

func (s *eventStream) emit(userID int64, eventType types.EventType, at time.Time, referralID *int64, metadata map[string]string) {
	s.events = append(s.events, &models.Event{
		EventID:    int64(len(s.events) + 1),
		UserID:     userID,
		EventType:  eventType,
		EventAt:    at,
		ReferralID: referralID,
		Metadata:   metadata,
	})
	s.stats.Emitted++
}

// offer emits the event when the outcome is kept and counts the drop otherwise
func (s *eventStream) offer(o Outcome[time.Time], userID int64, eventType types.EventType, referralID *int64, metadata map[string]string) (time.Time, bool) {
	if at, ok := o.Value(); ok {
		s.emit(userID, eventType, at, referralID, metadata)
		return at, true
	}
	s.stats.Drop(o.Reason())
	return time.Time{}, false
}

// GenerateEvents runs the per-user, per-referral and per-purchase passes over
// the completed dataset. Every earlier stage must have run.
func (g *Generator) GenerateEvents() ([]*models.Event, error) {
	if g.pop.Len() == 0 {
		return nil, apperrors.NewPreconditionError(StageEvents, "users must exist before events")
	}
	if !g.completed[StageReferrals] {
		return nil, apperrors.NewPreconditionError(StageEvents, "referrals must be generated before events")
	}
	if !g.completed[StagePurchases] {
		return nil, apperrors.NewPreconditionError(StageEvents, "purchases must be generated before events")
	}

	stream := &eventStream{stats: newStageStats(StageEvents)}
	g.userBaselineEvents(stream)
	for _, r := range g.referrals {
		g.referralLifecycleEvents(stream, r)
	}
	g.purchaseEvents(stream)

	g.events = stream.events
	g.finishStage(stream.stats)
	return stream.events, nil
}

func (g *Generator) userBaselineEvents(stream *eventStream) {
	window := g.params.Window
	for _, u := range g.pop.Users() {
		// install is account creation; pre-window users have no install inside the window
		stream.offer(windowOutcome(window, u.CreatedAt), u.UserID, types.EventInstall, nil, nil)

		opens := appOpenCounts.Sample(g.src)
		for i := 0; i < opens; i++ {
			offset := time.Duration(g.src.IntRange(0, appOpenSpanDays))*24*time.Hour +
				time.Duration(g.src.IntRange(0, 23))*time.Hour +
				time.Duration(g.src.IntRange(0, 59))*time.Minute
			stream.offer(windowOutcome(window, u.CreatedAt.Add(offset)), u.UserID, types.EventAppOpen, nil, nil)
		}
	}
}

func (g *Generator) referralLifecycleEvents(stream *eventStream, r *models.Referral) {
	window := g.params.Window
	refID := r.ReferralID
	referralID := &refID

	// invite_sent is always inside the window
	stream.emit(r.ReferrerUserID, types.EventInviteSent, r.SentAt, referralID, nil)

	engaged := r.Status == types.ReferralClicked || r.Status == types.ReferralConverted
	if engaged && r.ReferredUserID == nil {
		stream.stats.Drop(types.DropNoReferredUser)
	}
	if engaged && r.ReferredUserID != nil {
		referred := *r.ReferredUserID

		// install and referral_applied are not bounded by the conversion; late
		// applications are the ineligible examples
		installAt := r.SentAt.Add(time.Duration(g.src.IntRange(1, 24)) * time.Hour)
		stream.offer(ChainOutcome(window, r.SentAt, nil, installAt), referred, types.EventInstall, referralID,
			map[string]string{"source": "referral"})

		appliedAt := installAt.Add(time.Duration(applyDelayHours.Sample(g.src)) * time.Hour)
		stream.offer(ChainOutcome(window, installAt, nil, appliedAt), referred, types.EventReferralApplied, referralID, nil)
	}

	if !r.IsConverted() {
		return
	}
	referred := *r.ReferredUserID
	convertedAt := *r.ConvertedAt

	// onboarding and school_linked run from the invite up to the conversion
	floor := r.SentAt
	advance := func(at time.Time, eventType types.EventType) {
		if emitted, ok := stream.offer(ChainOutcome(window, floor, &convertedAt, at), referred, eventType, referralID, nil); ok {
			floor = emitted
		}
	}

	onboardingAt := convertedAt.Add(-time.Duration(g.src.IntRange(1, 12)) * time.Hour)
	advance(onboardingAt, types.EventOnboardingComplete)

	linkedAt := onboardingAt.Add(time.Duration(g.src.IntRange(0, 2)) * 24 * time.Hour)
	advance(linkedAt, types.EventSchoolLinked)

	// both rewards are awarded at conversion; redemptions follow the awards
	sides := []struct {
		userID int64
		reward types.RewardType
	}{
		{r.ReferrerUserID, types.RewardReferrerBonus},
		{referred, types.RewardReferredBonus},
	}
	for _, side := range sides {
		metadata := map[string]string{"reward_type": string(side.reward)}
		stream.offer(ChainOutcome(window, floor, nil, convertedAt), side.userID, types.EventRewardAwarded, referralID, metadata)

		if !g.src.Bernoulli(redeemRate) {
			stream.stats.Drop(types.DropNotRedeemed)
			continue
		}
		redeemedAt := convertedAt.Add(time.Duration(g.src.IntRange(1, 30)) * 24 * time.Hour)
		stream.offer(ChainOutcome(window, convertedAt, nil, redeemedAt), side.userID, types.EventRewardRedeemed, referralID, metadata)
	}
}

func (g *Generator) purchaseEvents(stream *eventStream) {
	window := g.params.Window
	for _, p := range g.purchases {
		scanStart := p.PurchasedAt.Add(-time.Duration(g.src.IntRange(1, 5)) * time.Minute)
		stream.offer(windowOutcome(window, scanStart), p.UserID, types.EventReceiptScanStarted, nil, nil)

		if g.src.Bernoulli(scanCompletedRate) {
			stream.emit(p.UserID, types.EventReceiptScanCompleted, p.PurchasedAt, nil, nil)
		} else {
			stream.stats.Drop(types.DropScanFailed)
		}

		if g.src.Bernoulli(incentiveRate) {
			viewedAt := p.PurchasedAt.Add(-time.Duration(g.src.IntRange(5, 60)) * time.Minute)
			stream.offer(windowOutcome(window, viewedAt), p.UserID, types.EventIncentiveViewed, nil, nil)
		} else {
			stream.stats.Drop(types.DropNotSampled)
		}
	}
}
