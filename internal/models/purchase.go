package models

import (
	"math"
	"time"
)

// Purchase represents a scanned receipt line for a single product
type Purchase struct {
	PurchaseID   int64     `json:"purchaseId" db:"purchase_id"`
	UserID       int64     `json:"userId" db:"user_id"`
	ProductID    int64     `json:"productId" db:"product_id"`
	Quantity     int64     `json:"quantity" db:"quantity"`
	PricePaid    float64   `json:"pricePaid" db:"price_paid"`
	PointsEarned int64     `json:"pointsEarned" db:"points_earned"`
	PurchasedAt  time.Time `json:"purchasedAt" db:"purchased_at"`
	DayOfWeek    string    `json:"dayOfWeek" db:"day_of_week"`
	HourOfDay    int64     `json:"hourOfDay" db:"hour_of_day"`
	// Qualifying marks purchases injected after a referral conversion; not exported as a column
	Qualifying bool `json:"-" db:"-"`
}

var purchaseColumns = []string{
	"purchase_id", "user_id", "product_id", "quantity", "price_paid",
	"points_earned", "purchased_at", "day_of_week", "hour_of_day",
}

// SetPurchasedAt sets the timestamp and the derived calendar fields
func (p *Purchase) SetPurchasedAt(purchasedAt time.Time) {
	p.PurchasedAt = purchasedAt
	p.DayOfWeek = purchasedAt.Weekday().String()
	p.HourOfDay = int64(purchasedAt.Hour())
}

// Columns returns the purchase column order
func (p *Purchase) Columns() []string { return purchaseColumns }

// Values returns the purchase field values
func (p *Purchase) Values() []any {
	return []any{
		p.PurchaseID, p.UserID, p.ProductID, p.Quantity, p.PricePaid,
		p.PointsEarned, p.PurchasedAt, p.DayOfWeek, p.HourOfDay,
	}
}

// PointsFor returns round(pricePaid * pointsPerDollar), rounding half to even
func PointsFor(pricePaid float64, pointsPerDollar int64) int64 {
	return int64(math.RoundToEven(pricePaid * float64(pointsPerDollar)))
}
