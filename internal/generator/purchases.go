package generator

import (
	"time"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

const (
	buyerParetoAlpha     = 2.0
	promoRate            = 0.12
	minPricePaid         = 0.5
	qualifyingRate       = 0.85
	maxQualifyDiscount   = 0.18
	maxAttemptsPerTarget = 100
)

var (
	categoryPreference = map[types.UserType]*entropy.Distribution[string]{
		types.UserTypeParent: entropy.MustDistribution(
			[]string{CategoryBreakfast, CategoryDairy, CategoryPantry, CategorySnacks, CategoryBeverages},
			[]float64{0.28, 0.22, 0.20, 0.18, 0.12}),
		types.UserTypeTeacher: entropy.MustDistribution(
			[]string{CategorySnacks, CategoryBeverages, CategoryBreakfast, CategoryPantry, CategoryDairy},
			[]float64{0.26, 0.22, 0.18, 0.18, 0.16}),
		types.UserTypeSupporter: entropy.MustDistribution(
			[]string{CategorySnacks, CategoryBeverages, CategoryPantry, CategoryBreakfast, CategoryDairy},
			[]float64{0.30, 0.28, 0.18, 0.14, 0.10}),
	}

	// Monday first
	weekdayWeights = []float64{1.0, 0.95, 0.95, 1.0, 1.05, 1.25, 1.20}

	hourOfDay = entropy.MustDistribution(hours(), diurnalWeights())

	purchaseQuantity   = entropy.MustDistribution([]int64{1, 2, 3, 4, 5, 6}, []float64{0.70, 0.18, 0.07, 0.03, 0.015, 0.005})
	qualifyingQuantity = entropy.MustDistribution([]int64{1, 2, 3}, []float64{0.72, 0.22, 0.06})
)

func hours() []int {
	h := make([]int, 24)
	for i := range h {
		h[i] = i
	}
	return h
}

// diurnalWeights peaks in the late afternoon and troughs overnight
func diurnalWeights() []float64 {
	w := make([]float64, 24)
	for h := range w {
		switch {
		case h >= 6 && h <= 9:
			w[h] = 1.2
		case h >= 10 && h <= 15:
			w[h] = 1.0
		case h >= 16 && h <= 20:
			w[h] = 1.35
		case h >= 21 && h <= 22:
			w[h] = 0.9
		default:
			w[h] = 0.25
		}
	}
	return w
}

// calendar holds the window's days grouped by weekday (Monday = 0)
type calendar struct {
	byWeekday [7][]time.Time
	weights   []float64
}

func newCalendar(window models.Window) *calendar {
	c := &calendar{weights: make([]float64, 7)}
	first := time.Date(window.Start.Year(), window.Start.Month(), window.Start.Day(), 0, 0, 0, 0, time.UTC)
	for day := first; !day.After(window.End); day = day.AddDate(0, 0, 1) {
		wd := mondayIndex(day.Weekday())
		c.byWeekday[wd] = append(c.byWeekday[wd], day)
	}
	// weekdays with no day in the window get zero weight
	for wd := range c.byWeekday {
		if len(c.byWeekday[wd]) > 0 {
			c.weights[wd] = weekdayWeights[wd]
		}
	}
	return c
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// pick draws a weekday, a day with that weekday, then hour, minute and second
func (c *calendar) pick(src *entropy.Source) (time.Time, error) {
	wd, err := src.WeightedIndex(c.weights)
	if err != nil {
		return time.Time{}, err
	}
	day := entropy.Choice(src, c.byWeekday[wd])
	hour := hourOfDay.Sample(src)
	minute := src.IntRange(0, 59)
	second := src.IntRange(0, 59)
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second), nil
}

// buyerWeights scales a Pareto draw by user type, verification and channel
func (g *Generator) buyerWeights(users []*models.User) []float64 {
	weights := make([]float64, len(users))
	for i, u := range users {
		w := g.src.Pareto(buyerParetoAlpha)
		if u.UserType == types.UserTypeParent || u.UserType == types.UserTypeTeacher {
			w *= 1.25
		} else {
			w *= 0.9
		}
		if u.IsVerified {
			w *= 1.15
		} else {
			w *= 0.6
		}
		if u.MarketingChannel == types.ChannelSchoolCampaign {
			w *= 1.15
		}
		weights[i] = w
	}
	return weights
}

// candidatePurchase checks a drawn timestamp against the window and the buyer's creation time
func candidatePurchase(window models.Window, buyer *models.User, at time.Time) Outcome[time.Time] {
	switch {
	case at.Before(window.Start):
		return Dropped[time.Time](types.DropBeforeWindowStart)
	case at.After(window.End):
		return Dropped[time.Time](types.DropAfterWindowEnd)
	case at.Before(buyer.CreatedAt):
		return Dropped[time.Time](types.DropBeforeUserCreated)
	}
	return Emitted(at)
}

// GeneratePurchases samples n base purchases and then injects a qualifying
// purchase after most surviving conversions. Referrals must have run.
func (g *Generator) GeneratePurchases(n int) ([]*models.Purchase, error) {
	if g.pop.Len() == 0 || len(g.products) == 0 {
		return nil, apperrors.NewPreconditionError(StagePurchases, "users and products must be generated before purchases")
	}
	if !g.pop.Frozen() {
		return nil, apperrors.NewPreconditionError(StagePurchases, "referrals must be generated before purchases")
	}
	if n < 0 {
		return nil, apperrors.NewInvalidParameterError("purchases", "must not be negative")
	}

	stats := newStageStats(StagePurchases)
	window := g.params.Window

	byCategory := make(map[string][]*models.Product)
	var categories []string
	for _, p := range g.products {
		if _, seen := byCategory[p.Category]; !seen {
			categories = append(categories, p.Category)
		}
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}

	users := g.pop.Users()
	weights := g.buyerWeights(users)
	cal := newCalendar(window)

	purchases := make([]*models.Purchase, 0, n)
	for attempts := 0; len(purchases) < n; attempts++ {
		if attempts >= n*maxAttemptsPerTarget {
			g.logger.Warnf("Stopped after %d purchase attempts with %d of %d purchases", attempts, len(purchases), n)
			break
		}

		idx, err := g.src.WeightedIndex(weights)
		if err != nil {
			return nil, err
		}
		buyer := users[idx]

		drawnAt, err := cal.pick(g.src)
		if err != nil {
			return nil, err
		}

		category := categoryPreference[buyer.UserType].Sample(g.src)
		if _, ok := byCategory[category]; !ok {
			category = entropy.Choice(g.src, categories)
		}
		product := entropy.Choice(g.src, byCategory[category])
		quantity := purchaseQuantity.Sample(g.src)

		discount := 0.0
		if g.src.Bernoulli(promoRate) {
			discount = g.src.Uniform(0.05, 0.35)
		}
		lineTotal := product.Price * float64(quantity) * (1 - discount)
		noise := g.src.Uniform(-0.03, 0.03)
		pricePaid := roundCents(max(minPricePaid, lineTotal*(1+noise)))

		purchasedAt, ok := observe(stats, candidatePurchase(window, buyer, drawnAt))
		if !ok {
			continue
		}

		p := &models.Purchase{
			PurchaseID:   int64(len(purchases) + 1),
			UserID:       buyer.UserID,
			ProductID:    product.ProductID,
			Quantity:     quantity,
			PricePaid:    pricePaid,
			PointsEarned: models.PointsFor(pricePaid, product.PointsPerDollar),
		}
		p.SetPurchasedAt(purchasedAt)
		purchases = append(purchases, p)
	}

	purchases = g.injectQualifyingPurchases(purchases, stats)

	g.purchases = purchases
	g.finishStage(stats)
	return purchases, nil
}

// injectQualifyingPurchases appends one purchase for the referred user shortly
// after each sampled conversion; purchases landing after the window are dropped.
func (g *Generator) injectQualifyingPurchases(purchases []*models.Purchase, stats *StageStats) []*models.Purchase {
	window := g.params.Window
	for _, r := range g.referrals {
		if !r.IsConverted() {
			continue
		}
		if !g.src.Bernoulli(qualifyingRate) {
			stats.Drop(types.DropNotSampled)
			continue
		}

		offset := time.Duration(g.src.IntRange(0, 6))*24*time.Hour + time.Duration(g.src.IntRange(8, 20))*time.Hour
		at := r.ConvertedAt.Add(offset)
		if at.After(window.End) {
			stats.Drop(types.DropAfterWindowEnd)
			continue
		}

		product := entropy.Choice(g.src, g.products)
		quantity := qualifyingQuantity.Sample(g.src)
		pricePaid := max(minPricePaid, roundCents(product.Price*float64(quantity)*(1-g.src.Uniform(0, maxQualifyDiscount))))

		p := &models.Purchase{
			PurchaseID:   int64(len(purchases) + 1),
			UserID:       *r.ReferredUserID,
			ProductID:    product.ProductID,
			Quantity:     quantity,
			PricePaid:    pricePaid,
			PointsEarned: models.PointsFor(pricePaid, product.PointsPerDollar),
			Qualifying:   true,
		}
		p.SetPurchasedAt(at)
		purchases = append(purchases, p)
		stats.Emitted++
	}
	return purchases
}
