// Package models provides data models for the generated loyalty dataset.
package models

import (
	"time"
)

// Record is implemented by every generated entity so it can be written to a tabular sink.
// Values are restricted to int64, float64, string, time.Time or nil, in Columns() order.
type Record interface {
	Columns() []string
	Values() []any
}

// School represents a school that users link their purchases to
type School struct {
	SchoolID  int64     `json:"schoolId" db:"school_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	City      string    `json:"city" db:"city"`
	State     string    `json:"state" db:"state"`
	Zip       string    `json:"zip" db:"zip"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

var schoolColumns = []string{"school_id", "name", "address", "city", "state", "zip", "created_at"}

// Columns returns the school column order
func (s *School) Columns() []string { return schoolColumns }

// Values returns the school field values
func (s *School) Values() []any {
	return []any{s.SchoolID, s.Name, s.Address, s.City, s.State, s.Zip, s.CreatedAt}
}
