package generator

import (
	"strings"
	"time"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

// Funnel parameters
const (
	ClickRate            = 0.55
	ConversionGivenClick = 0.32
	AbusePenaltyRate     = 0.01
	SchoolLocalityRate   = 0.75
	DeviceReuseRate      = 0.01
	referredVerifiedRate = 0.92

	referrerParetoAlpha = 2.5
	unverifiedReferrer  = 0.05
	parentReferrerMult  = 1.15
	channelReferrerMult = 1.2
)

var (
	signupDelayHours = entropy.MustDistribution(
		[]int{1, 2, 6, 12, 24, 36, 48, 72},
		[]float64{0.10, 0.12, 0.18, 0.16, 0.18, 0.14, 0.10, 0.02},
	)

	referredUserTypes = entropy.MustDistribution(types.UserTypes, []float64{0.72, 0.18, 0.10})

	referredFirstNames = []string{"Alex", "Jordan", "Taylor", "Casey", "Riley", "Morgan", "Avery", "Sam"}
	referredLastNames  = []string{"Lee", "Nguyen", "Patel", "Kim", "Garcia", "Brown", "Davis", "Wilson"}
)

// FunnelStats summarizes how referrals progressed through the funnel
type FunnelStats struct {
	Sent             int `json:"sent"`
	Clicked          int `json:"clicked"`
	Converted        int `json:"converted"`
	RevertedWindow   int `json:"reverted_window"`
	RevertedSelf     int `json:"reverted_self_referral"`
	RevertedPenalty  int `json:"reverted_penalty"`
	DeviceReused     int `json:"device_reused"`
	MaterializedUser int `json:"materialized_users"`
}

// ConversionRate returns converted / sent, zero when nothing was sent
func (f FunnelStats) ConversionRate() float64 {
	if f.Sent == 0 {
		return 0
	}
	return float64(f.Converted) / float64(f.Sent)
}

// ResolveConversion applies the window gate to a conversion drawn delay after sentAt.
// A conversion that would land after the window end is dropped.
func ResolveConversion(window models.Window, sentAt time.Time, delay time.Duration) Outcome[time.Time] {
	convertedAt := sentAt.Add(delay)
	if convertedAt.After(window.End) {
		return Dropped[time.Time](types.DropConversionOutsideWindow)
	}
	return Emitted(convertedAt)
}

// abuseGuard returns a drop reason when a surviving conversion must be reverted.
// The random penalty is only drawn for non-self referrals. Referred emails are
// drawn unique across the population, so GenerateReferrals never hits the
// self-referral branch; it is kept as ground truth for callers passing their own emails.
func (g *Generator) abuseGuard(referredEmail, referrerEmail string) types.DropReason {
	if strings.EqualFold(referredEmail, referrerEmail) {
		return types.DropSelfReferral
	}
	if g.src.Bernoulli(AbusePenaltyRate) {
		return types.DropAbusePenalty
	}
	return ""
}

// referrerWeights gives every user a selection weight: a Pareto draw scaled by
// type and channel, or a near-zero weight for unverified users.
func (g *Generator) referrerWeights(users []*models.User) []float64 {
	weights := make([]float64, len(users))
	for i, u := range users {
		if !u.IsVerified {
			weights[i] = unverifiedReferrer
			continue
		}
		w := g.src.Pareto(referrerParetoAlpha)
		if u.UserType == types.UserTypeParent {
			w *= parentReferrerMult
		}
		if u.MarketingChannel == types.ChannelSchoolCampaign || u.MarketingChannel == types.ChannelPartner {
			w *= channelReferrerMult
		}
		weights[i] = w
	}
	return weights
}

// GenerateReferrals runs n referral attempts through the funnel and appends a
// new user for every surviving conversion.
//
// Referrers are drawn from the users that exist when the stage starts; users
// materialized by this stage never refer within the same run.
func (g *Generator) GenerateReferrals(n int) ([]*models.Referral, error) {
	if g.pop.Len() == 0 {
		return nil, apperrors.NewPreconditionError(StageReferrals, "users must be generated before referrals")
	}
	if len(g.products) == 0 {
		return nil, apperrors.NewPreconditionError(StageReferrals, "products must be generated before referrals")
	}
	if n < 0 {
		return nil, apperrors.NewInvalidParameterError("referrals", "must not be negative")
	}
	if err := g.pop.Open(StageReferrals); err != nil {
		return nil, err
	}
	defer g.pop.Freeze()

	stats := newStageStats(StageReferrals)
	window := g.params.Window

	// copy so appends during the stage do not change the referrer pool
	pool := append([]*models.User(nil), g.pop.Users()...)
	weights := g.referrerWeights(pool)

	referrals := make([]*models.Referral, 0, n)
	for i := 0; i < n; i++ {
		idx, err := g.src.WeightedIndex(weights)
		if err != nil {
			return nil, err
		}
		referrer := pool[idx]

		// an invite cannot predate its sender
		sendFrom := window.Start
		if referrer.CreatedAt.After(sendFrom) {
			sendFrom = referrer.CreatedAt
		}
		sentAt := g.src.UniformDatetime(sendFrom, window.End)

		referredEmail := g.src.UniqueEmail(g.pop.EmailTaken)
		ref := &models.Referral{
			ReferralID:     int64(i + 1),
			ReferrerUserID: referrer.UserID,
			ReferredEmail:  referredEmail,
			ReferralCode:   g.src.ReferralCode(referrer.UserID),
			SentAt:         sentAt,
			Status:         types.ReferralSent,
		}
		g.funnel.Sent++

		clicked := g.src.Bernoulli(ClickRate)
		converted := clicked && g.src.Bernoulli(ConversionGivenClick)
		if clicked {
			ref.Status = types.ReferralClicked
			g.funnel.Clicked++
		}

		var convertedAt time.Time
		if converted {
			delay := time.Duration(signupDelayHours.Sample(g.src)) * time.Hour
			conv := ResolveConversion(window, sentAt, delay)
			if convertedAt, converted = conv.Value(); !converted {
				stats.Drop(conv.Reason())
				g.funnel.RevertedWindow++
			}
		}

		if converted {
			if reason := g.abuseGuard(referredEmail, referrer.Email); reason != "" {
				converted = false
				stats.Drop(reason)
				if reason == types.DropSelfReferral {
					g.funnel.RevertedSelf++
				} else {
					g.funnel.RevertedPenalty++
				}
			}
		}

		if converted {
			user, err := g.materializeUser(referrer, referredEmail, convertedAt)
			if err != nil {
				return nil, err
			}
			referredUserID := user.UserID
			ref.Status = types.ReferralConverted
			ref.ReferredUserID = &referredUserID
			ref.ConvertedAt = &convertedAt
			g.funnel.Converted++
		}

		// permanent, even when the conversion was reverted
		g.pop.ReserveEmail(referredEmail)

		referrals = append(referrals, ref)
		stats.Emitted++
	}

	g.referrals = referrals
	g.finishStage(stats)
	g.logger.WithFields(map[string]interface{}{
		"sent":            g.funnel.Sent,
		"clicked":         g.funnel.Clicked,
		"converted":       g.funnel.Converted,
		"conversion_rate": g.funnel.ConversionRate(),
		"users_total":     g.pop.Len(),
	}).Info("Referral funnel complete")
	return referrals, nil
}

// materializeUser creates the referred user for a surviving conversion
func (g *Generator) materializeUser(referrer *models.User, email string, convertedAt time.Time) (*models.User, error) {
	schoolID := referrer.SchoolID
	if !g.src.Bernoulli(SchoolLocalityRate) {
		schoolID = entropy.Choice(g.src, g.schools).SchoolID
	}

	deviceID := g.src.DeviceID()
	if g.src.Bernoulli(DeviceReuseRate) && g.pop.HasDevices() {
		deviceID = g.pop.RandomDevice(g.src)
		g.funnel.DeviceReused++
	}

	user := &models.User{
		UserID:           g.pop.NextID(),
		FirstName:        entropy.Choice(g.src, referredFirstNames),
		LastName:         entropy.Choice(g.src, referredLastNames),
		Email:            email,
		SchoolID:         schoolID,
		CreatedAt:        convertedAt,
		UserType:         referredUserTypes.Sample(g.src),
		IsVerified:       g.src.Bernoulli(referredVerifiedRate),
		DeviceID:         deviceID,
		MarketingChannel: types.ChannelReferral,
	}
	if err := g.pop.Append(user); err != nil {
		return nil, err
	}
	g.funnel.MaterializedUser++
	g.logger.WithFields(map[string]interface{}{
		"user_id":     user.UserID,
		"referrer_id": referrer.UserID,
	}).Debug("Materialized referred user")
	return user, nil
}
