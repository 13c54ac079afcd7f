package models

import (
	"time"
)

// Table names of the six generated datasets, in output order
const (
	TableSchools   = "schools"
	TableUsers     = "users"
	TableProducts  = "products"
	TableReferrals = "referrals"
	TablePurchases = "purchases"
	TableEvents    = "events"
)

// TableNames lists every dataset in the order it is generated and written
var TableNames = []string{TableSchools, TableUsers, TableProducts, TableReferrals, TablePurchases, TableEvents}

// Window is the closed analytics interval [Start, End]
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the window, both ends inclusive
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Dataset holds the complete output of one generation run
type Dataset struct {
	Window    Window      `json:"window"`
	Schools   []*School   `json:"schools"`
	Users     []*User     `json:"users"`
	Products  []*Product  `json:"products"`
	Referrals []*Referral `json:"referrals"`
	Purchases []*Purchase `json:"purchases"`
	Events    []*Event    `json:"events"`
}

// Records returns the rows of the named table as generic records
func (d *Dataset) Records(table string) []Record {
	switch table {
	case TableSchools:
		return toRecords(d.Schools)
	case TableUsers:
		return toRecords(d.Users)
	case TableProducts:
		return toRecords(d.Products)
	case TableReferrals:
		return toRecords(d.Referrals)
	case TablePurchases:
		return toRecords(d.Purchases)
	case TableEvents:
		return toRecords(d.Events)
	}
	return nil
}

// RowCounts returns the number of rows per table
func (d *Dataset) RowCounts() map[string]int {
	return map[string]int{
		TableSchools:   len(d.Schools),
		TableUsers:     len(d.Users),
		TableProducts:  len(d.Products),
		TableReferrals: len(d.Referrals),
		TablePurchases: len(d.Purchases),
		TableEvents:    len(d.Events),
	}
}

func toRecords[T Record](rows []T) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
