package models

import (
	"time"

	"github.com/cartoncaps/analytics/internal/types"
)

// User represents an app user, either part of the initial population or created by a referral conversion
type User struct {
	UserID           int64                  `json:"userId" db:"user_id"`
	FirstName        string                 `json:"firstName" db:"first_name"`
	LastName         string                 `json:"lastName" db:"last_name"`
	Email            string                 `json:"email" db:"email"`
	SchoolID         int64                  `json:"schoolId" db:"school_id"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	UserType         types.UserType         `json:"userType" db:"user_type"`
	IsVerified       bool                   `json:"isVerified" db:"is_verified"`
	DeviceID         string                 `json:"deviceId" db:"device_id"`
	MarketingChannel types.MarketingChannel `json:"marketingChannel" db:"marketing_channel"`
}

var userColumns = []string{
	"user_id", "first_name", "last_name", "email", "school_id", "created_at",
	"user_type", "is_verified", "device_id", "marketing_channel",
}

// Columns returns the user column order
func (u *User) Columns() []string { return userColumns }

// Values returns the user field values; is_verified is written as 0/1
func (u *User) Values() []any {
	verified := int64(0)
	if u.IsVerified {
		verified = 1
	}
	return []any{
		u.UserID, u.FirstName, u.LastName, u.Email, u.SchoolID, u.CreatedAt,
		string(u.UserType), verified, u.DeviceID, string(u.MarketingChannel),
	}
}
