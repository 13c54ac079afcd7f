package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var testTime = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func testSchool(id int64) *models.School {
	return &models.School{
		SchoolID:  id,
		Name:      "Lincoln Elementary",
		Address:   "12 Main St",
		City:      "Springfield",
		State:     "IL",
		Zip:       "62701",
		CreatedAt: testTime,
	}
}

// testReferralRecords returns a sent referral followed by a converted one,
// so the first record carries nulls
func testReferralRecords() []models.Record {
	referred := int64(7)
	converted := testTime.Add(48 * time.Hour)
	return []models.Record{
		&models.Referral{
			ReferralID:     1,
			ReferrerUserID: 3,
			ReferredEmail:  "a@example.com",
			ReferralCode:   "ABC123",
			SentAt:         testTime,
			Status:         types.ReferralSent,
		},
		&models.Referral{
			ReferralID:     2,
			ReferrerUserID: 3,
			ReferredEmail:  "b@example.com",
			ReferredUserID: &referred,
			ReferralCode:   "DEF456",
			SentAt:         testTime,
			ConvertedAt:    &converted,
			Status:         types.ReferralConverted,
		},
	}
}
