package report

import (
	"sort"

	"github.com/cartoncaps/analytics/internal/generator"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

// Tracked ranges of the distributions
const (
	maxPricePaid      = 10000.0
	maxDelayHours     = 24.0 * 366
	maxReferralsCount = 100000.0
)

// Funnel holds the referral funnel counts and fractions
type Funnel struct {
	Sent                 int     `json:"sent"`
	Clicked              int     `json:"clicked"`
	Converted            int     `json:"converted"`
	ClickRate            float64 `json:"click_rate"`
	ConversionGivenClick float64 `json:"conversion_given_click"`
	NetConversion        float64 `json:"net_conversion"`
	DeviceReused         int     `json:"device_reused"`
}

// Report is the generation report of a run
type Report struct {
	RowCounts                 map[string]int            `json:"row_counts"`
	Dropped                   map[string]map[string]int `json:"dropped"`
	Funnel                    Funnel                    `json:"funnel"`
	DeviceCollisions          int                       `json:"device_collisions"`
	PricePaid                 Summary                   `json:"price_paid"`
	ConversionDelayHours      Summary                   `json:"conversion_delay_hours"`
	ReferralAppliedDelayHours Summary                   `json:"referral_applied_delay_hours"`
	ReferralsPerReferrer      Summary                   `json:"referrals_per_referrer"`
}

// Build summarizes a generation result
func Build(result *generator.Result) *Report {
	d := result.Dataset

	r := &Report{
		RowCounts:        d.RowCounts(),
		Dropped:          make(map[string]map[string]int, len(result.Stages)),
		Funnel:           buildFunnel(result.Funnel),
		DeviceCollisions: result.DeviceCollisions,
	}
	for _, s := range result.Stages {
		reasons := make(map[string]int, len(s.Dropped))
		for reason, n := range s.Dropped {
			reasons[string(reason)] = n
		}
		r.Dropped[s.Stage] = reasons
	}

	r.PricePaid = pricePaid(d.Purchases)
	r.ConversionDelayHours = conversionDelay(d.Referrals)
	r.ReferralAppliedDelayHours = referralAppliedDelay(d.Events)
	r.ReferralsPerReferrer = referralsPerReferrer(d.Referrals)
	return r
}

func buildFunnel(f generator.FunnelStats) Funnel {
	return Funnel{
		Sent:                 f.Sent,
		Clicked:              f.Clicked,
		Converted:            f.Converted,
		ClickRate:            fraction(f.Clicked, f.Sent),
		ConversionGivenClick: fraction(f.Converted, f.Clicked),
		NetConversion:        fraction(f.Converted, f.Sent),
		DeviceReused:         f.DeviceReused,
	}
}

func fraction(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return round(float64(n)/float64(of), 4)
}

func pricePaid(purchases []*models.Purchase) Summary {
	dist := NewDistribution(maxPricePaid, 100)
	for _, p := range purchases {
		dist.Record(p.PricePaid)
	}
	return dist.Summary()
}

func conversionDelay(referrals []*models.Referral) Summary {
	dist := NewDistribution(maxDelayHours, 100)
	for _, r := range referrals {
		if r.ConvertedAt != nil {
			dist.Record(r.ConvertedAt.Sub(r.SentAt).Hours())
		}
	}
	return dist.Summary()
}

// referralAppliedDelay measures referral_applied against the install of the
// same referral
func referralAppliedDelay(events []*models.Event) Summary {
	installs := make(map[int64]*models.Event)
	for _, e := range events {
		if e.ReferralID != nil && e.EventType == types.EventInstall {
			installs[*e.ReferralID] = e
		}
	}

	dist := NewDistribution(maxDelayHours, 100)
	for _, e := range events {
		if e.ReferralID == nil || e.EventType != types.EventReferralApplied {
			continue
		}
		if install, ok := installs[*e.ReferralID]; ok {
			dist.Record(e.EventAt.Sub(install.EventAt).Hours())
		}
	}
	return dist.Summary()
}

func referralsPerReferrer(referrals []*models.Referral) Summary {
	counts := make(map[int64]int)
	for _, r := range referrals {
		counts[r.ReferrerUserID]++
	}

	dist := NewDistribution(maxReferralsCount, 1)
	for _, n := range counts {
		dist.Record(float64(n))
	}
	return dist.Summary()
}

// Log writes the report at info level
func (r *Report) Log(logger *logging.Logger) {
	logger.WithFields(map[string]interface{}{
		"sent":                   r.Funnel.Sent,
		"clicked":                r.Funnel.Clicked,
		"converted":              r.Funnel.Converted,
		"net_conversion":         r.Funnel.NetConversion,
		"conversion_given_click": r.Funnel.ConversionGivenClick,
		"device_collisions":      r.DeviceCollisions,
	}).Info("Referral funnel")

	logger.WithFields(map[string]interface{}{
		"p50": r.PricePaid.P50,
		"p95": r.PricePaid.P95,
		"max": r.PricePaid.Max,
	}).Info("Purchase price paid")

	stages := make([]string, 0, len(r.Dropped))
	for stage := range r.Dropped {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		for reason, n := range r.Dropped[stage] {
			logger.WithFields(map[string]interface{}{
				"stage":  stage,
				"reason": reason,
				"count":  n,
			}).Debug("Dropped records")
		}
	}
}
