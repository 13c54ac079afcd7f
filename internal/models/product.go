package models

import (
	"time"
)

// Product represents a catalog item that earns points when purchased
type Product struct {
	ProductID       int64     `json:"productId" db:"product_id"`
	Name            string    `json:"name" db:"name"`
	Category        string    `json:"category" db:"category"`
	Price           float64   `json:"price" db:"price"`
	PointsPerDollar int64     `json:"pointsPerDollar" db:"points_per_dollar"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

var productColumns = []string{"product_id", "name", "category", "price", "points_per_dollar", "created_at"}

// Columns returns the product column order
func (p *Product) Columns() []string { return productColumns }

// Values returns the product field values
func (p *Product) Values() []any {
	return []any{p.ProductID, p.Name, p.Category, p.Price, p.PointsPerDollar, p.CreatedAt}
}
