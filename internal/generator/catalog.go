package generator

import (
	"math"
	"time"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
)

// Product categories in catalog order
const (
	CategoryBreakfast = "Breakfast"
	CategorySnacks    = "Snacks"
	CategoryBeverages = "Beverages"
	CategoryDairy     = "Dairy"
	CategoryPantry    = "Pantry"
)

type categoryItems struct {
	category string
	items    []string
}

var (
	catalogItems = []categoryItems{
		{CategoryBreakfast, []string{"Cereal", "Oatmeal", "Granola Bars", "Yogurt", "Waffles"}},
		{CategorySnacks, []string{"Chips", "Crackers", "Cookies", "Pretzels", "Popcorn"}},
		{CategoryBeverages, []string{"Juice", "Water", "Sports Drink", "Tea", "Coffee"}},
		{CategoryDairy, []string{"Milk", "Cheese", "Butter", "Ice Cream", "Cream Cheese"}},
		{CategoryPantry, []string{"Pasta", "Rice", "Soup", "Sauce", "Oil"}},
	}

	brands = []string{
		"Wonka", "Duff", "Buzz Cola", "Krusty", "Lard Lad",
		"Soylent", "Brawndo", "Slurm", "Bachelor Chow",
		"Initech", "Umbrella", "Tyrell", "Cyberdyne",
		"Atreides", "Harkonnen", "CHOAM",
	}

	pointsPerDollar = []int64{1, 2, 3, 5}
)

const (
	itemsPerCategory = 5
	minBasePrice     = 1.99
	maxBasePrice     = 9.99
)

// GenerateProducts builds ceil(n/25) products per category item (at least one) and
// truncates the list to exactly n. Products are laid out round by round, one item
// of every category in turn, so a truncated catalog still covers every category.
func (g *Generator) GenerateProducts(n int) ([]*models.Product, error) {
	if n < 0 {
		return nil, apperrors.NewInvalidParameterError("products", "must not be negative")
	}

	stats := newStageStats(StageProducts)
	perItem := max(1, (n+24)/25)
	products := make([]*models.Product, 0, perItem*25)

	for k := 0; k < perItem; k++ {
		for item := 0; item < itemsPerCategory; item++ {
			for _, ci := range catalogItems {
				price := roundCents(g.src.Uniform(minBasePrice, maxBasePrice))
				products = append(products, &models.Product{
					ProductID:       int64(len(products) + 1),
					Name:            entropy.Choice(g.src, brands) + " " + ci.items[item],
					Category:        ci.category,
					Price:           price,
					PointsPerDollar: entropy.Choice(g.src, pointsPerDollar),
					CreatedAt:       g.params.Window.Start.Add(-time.Duration(g.src.IntRange(30, 365)) * 24 * time.Hour),
				})
			}
		}
	}

	if len(products) > n {
		products = products[:n]
	}
	stats.Emitted = len(products)

	g.products = products
	g.finishStage(stats)
	return products, nil
}

// roundCents rounds to 2 decimal places, half away from zero
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
