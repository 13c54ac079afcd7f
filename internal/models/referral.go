package models

import (
	"time"

	"github.com/cartoncaps/analytics/internal/types"
)

// Referral represents one invite sent by an existing user
type Referral struct {
	ReferralID     int64                `json:"referralId" db:"referral_id"`
	ReferrerUserID int64                `json:"referrerUserId" db:"referrer_user_id"`
	ReferredEmail  string               `json:"referredEmail" db:"referred_email"`
	ReferredUserID *int64               `json:"referredUserId,omitempty" db:"referred_user_id"` // set iff converted
	ReferralCode   string               `json:"referralCode" db:"referral_code"`
	SentAt         time.Time            `json:"sentAt" db:"sent_at"`
	ConvertedAt    *time.Time           `json:"convertedAt,omitempty" db:"converted_at"` // set iff converted
	Status         types.ReferralStatus `json:"status" db:"status"`
}

var referralColumns = []string{
	"referral_id", "referrer_user_id", "referred_email", "referred_user_id",
	"referral_code", "sent_at", "converted_at", "status",
}

// IsConverted reports whether the referral produced a new user
func (r *Referral) IsConverted() bool {
	return r.Status == types.ReferralConverted && r.ConvertedAt != nil && r.ReferredUserID != nil
}

// Columns returns the referral column order
func (r *Referral) Columns() []string { return referralColumns }

// Values returns the referral field values
func (r *Referral) Values() []any {
	var referredUserID, convertedAt any
	if r.ReferredUserID != nil {
		referredUserID = *r.ReferredUserID
	}
	if r.ConvertedAt != nil {
		convertedAt = *r.ConvertedAt
	}
	return []any{
		r.ReferralID, r.ReferrerUserID, r.ReferredEmail, referredUserID,
		r.ReferralCode, r.SentAt, convertedAt, string(r.Status),
	}
}
