// Package validate re-derives the dataset invariants from generated tables.
package validate

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

// Check names
const (
	CheckIdentifiers          = "identifiers"
	CheckReferentialIntegrity = "referential_integrity"
	CheckStatusCoupling       = "status_coupling"
	CheckWindowContainment    = "window_containment"
	CheckCausalOrdering       = "causal_ordering"
	CheckEmailUniqueness      = "email_uniqueness"
	CheckDeviceCollisions     = "device_collisions"
	CheckDerivedFields        = "derived_fields"
)

// maxRecordedViolations caps the messages kept per check; the count is always exact
const maxRecordedViolations = 20

// CheckResult is the outcome of one invariant check
type CheckResult struct {
	Name           string   `json:"name"`
	Passed         bool     `json:"passed"`
	ViolationCount int      `json:"violationCount"`
	Violations     []string `json:"violations,omitempty"`
}

func (c *CheckResult) violate(format string, args ...interface{}) {
	c.Passed = false
	c.ViolationCount++
	if len(c.Violations) < maxRecordedViolations {
		c.Violations = append(c.Violations, fmt.Sprintf(format, args...))
	}
}

// Report is the result of checking a whole dataset
type Report struct {
	Passed    bool           `json:"passed"`
	Checks    []*CheckResult `json:"checks"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// FailedChecks returns the names of checks with violations
func (r *Report) FailedChecks() []string {
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// Check returns the named check result
func (r *Report) Check(name string) *CheckResult {
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Err returns a validation error when any check failed
func (r *Report) Err() error {
	if r.Passed {
		return nil
	}
	return apperrors.NewDatasetValidationError(r.FailedChecks())
}

// ConsistencyChecker verifies a generated dataset against its invariants
type ConsistencyChecker struct {
	// MaxDeviceCollisions bounds users sharing a device id; negative disables the bound
	MaxDeviceCollisions int
}

// NewConsistencyChecker creates a checker allowing maxDeviceCollisions shared devices
func NewConsistencyChecker(maxDeviceCollisions int) *ConsistencyChecker {
	return &ConsistencyChecker{MaxDeviceCollisions: maxDeviceCollisions}
}

// DefaultDeviceCollisionBound allows ten times the expected reuse count for the
// given number of conversions, with a floor for small runs
func DefaultDeviceCollisionBound(conversions int, reuseRate float64) int {
	return max(5, int(float64(conversions)*reuseRate*10))
}

// index holds lookups shared by the checks
type index struct {
	users     map[int64]*models.User
	schools   map[int64]*models.School
	products  map[int64]*models.Product
	referrals map[int64]*models.Referral
}

func buildIndex(d *models.Dataset) *index {
	idx := &index{
		users:     make(map[int64]*models.User, len(d.Users)),
		schools:   make(map[int64]*models.School, len(d.Schools)),
		products:  make(map[int64]*models.Product, len(d.Products)),
		referrals: make(map[int64]*models.Referral, len(d.Referrals)),
	}
	for _, u := range d.Users {
		idx.users[u.UserID] = u
	}
	for _, s := range d.Schools {
		idx.schools[s.SchoolID] = s
	}
	for _, p := range d.Products {
		idx.products[p.ProductID] = p
	}
	for _, r := range d.Referrals {
		idx.referrals[r.ReferralID] = r
	}
	return idx
}

// CheckDataset runs every check over d
func (cc *ConsistencyChecker) CheckDataset(d *models.Dataset) *Report {
	idx := buildIndex(d)
	report := &Report{CheckedAt: time.Now().UTC(), Passed: true}

	report.Checks = []*CheckResult{
		checkIdentifiers(d),
		checkReferentialIntegrity(d, idx),
		checkStatusCoupling(d),
		checkWindowContainment(d),
		checkCausalOrdering(d),
		checkEmailUniqueness(d, idx),
		cc.checkDeviceCollisions(d),
		checkDerivedFields(d, idx),
	}
	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
		}
	}
	return report
}

func newCheck(name string) *CheckResult {
	return &CheckResult{Name: name, Passed: true}
}

func checkIdentifiers(d *models.Dataset) *CheckResult {
	c := newCheck(CheckIdentifiers)
	for i, s := range d.Schools {
		if s.SchoolID != int64(i+1) {
			c.violate("school at position %d has id %d", i, s.SchoolID)
		}
	}
	// dense and strictly increasing in creation order
	for i, u := range d.Users {
		if u.UserID != int64(i+1) {
			c.violate("user at position %d has id %d", i, u.UserID)
		}
	}
	for i, p := range d.Products {
		if p.ProductID != int64(i+1) {
			c.violate("product at position %d has id %d", i, p.ProductID)
		}
	}
	for i, r := range d.Referrals {
		if r.ReferralID != int64(i+1) {
			c.violate("referral at position %d has id %d", i, r.ReferralID)
		}
	}
	for i, p := range d.Purchases {
		if p.PurchaseID != int64(i+1) {
			c.violate("purchase at position %d has id %d", i, p.PurchaseID)
		}
	}
	for i, e := range d.Events {
		if e.EventID != int64(i+1) {
			c.violate("event at position %d has id %d", i, e.EventID)
		}
	}
	return c
}

func checkReferentialIntegrity(d *models.Dataset, idx *index) *CheckResult {
	c := newCheck(CheckReferentialIntegrity)

	for _, u := range d.Users {
		if _, ok := idx.schools[u.SchoolID]; !ok {
			c.violate("user %d references missing school %d", u.UserID, u.SchoolID)
		}
	}

	for _, r := range d.Referrals {
		referrer, ok := idx.users[r.ReferrerUserID]
		if !ok {
			c.violate("referral %d references missing referrer %d", r.ReferralID, r.ReferrerUserID)
		} else if referrer.CreatedAt.After(r.SentAt) {
			c.violate("referral %d sent before referrer %d existed", r.ReferralID, r.ReferrerUserID)
		}
		if r.ReferredUserID != nil {
			if _, ok := idx.users[*r.ReferredUserID]; !ok {
				c.violate("referral %d references missing referred user %d", r.ReferralID, *r.ReferredUserID)
			}
		}
	}

	for _, p := range d.Purchases {
		buyer, ok := idx.users[p.UserID]
		if !ok {
			c.violate("purchase %d references missing user %d", p.PurchaseID, p.UserID)
		} else if buyer.CreatedAt.After(p.PurchasedAt) {
			c.violate("purchase %d made before user %d existed", p.PurchaseID, p.UserID)
		}
		if _, ok := idx.products[p.ProductID]; !ok {
			c.violate("purchase %d references missing product %d", p.PurchaseID, p.ProductID)
		}
	}

	for _, e := range d.Events {
		if _, ok := idx.users[e.UserID]; !ok {
			c.violate("event %d references missing user %d", e.EventID, e.UserID)
		}
		if e.ReferralID != nil {
			if _, ok := idx.referrals[*e.ReferralID]; !ok {
				c.violate("event %d references missing referral %d", e.EventID, *e.ReferralID)
			}
		}
	}
	return c
}

func checkStatusCoupling(d *models.Dataset) *CheckResult {
	c := newCheck(CheckStatusCoupling)
	for _, r := range d.Referrals {
		converted := r.Status == types.ReferralConverted
		if converted != (r.ConvertedAt != nil) {
			c.violate("referral %d status %s with converted_at set=%t", r.ReferralID, r.Status, r.ConvertedAt != nil)
		}
		if converted != (r.ReferredUserID != nil) {
			c.violate("referral %d status %s with referred_user_id set=%t", r.ReferralID, r.Status, r.ReferredUserID != nil)
		}
		if r.ConvertedAt != nil && r.ConvertedAt.Before(r.SentAt) {
			c.violate("referral %d converted before it was sent", r.ReferralID)
		}
		switch r.Status {
		case types.ReferralSent, types.ReferralClicked, types.ReferralConverted:
		default:
			c.violate("referral %d has unknown status %q", r.ReferralID, r.Status)
		}
	}
	return c
}

func checkWindowContainment(d *models.Dataset) *CheckResult {
	c := newCheck(CheckWindowContainment)
	w := d.Window
	for _, r := range d.Referrals {
		if !w.Contains(r.SentAt) {
			c.violate("referral %d sent_at %s outside window", r.ReferralID, r.SentAt.Format(time.RFC3339))
		}
		if r.ConvertedAt != nil && !w.Contains(*r.ConvertedAt) {
			c.violate("referral %d converted_at %s outside window", r.ReferralID, r.ConvertedAt.Format(time.RFC3339))
		}
	}
	for _, p := range d.Purchases {
		if !w.Contains(p.PurchasedAt) {
			c.violate("purchase %d purchased_at %s outside window", p.PurchaseID, p.PurchasedAt.Format(time.RFC3339))
		}
	}
	for _, e := range d.Events {
		if !w.Contains(e.EventAt) {
			c.violate("event %d (%s) at %s outside window", e.EventID, e.EventType, e.EventAt.Format(time.RFC3339))
		}
	}
	return c
}

// eventOrder requires every Before event of a referral to be at or before
// every After event of the same referral
type eventOrder struct {
	Before, After types.EventType
}

// causalOrders are the orderings a referral's events must satisfy. install and
// referral_applied only follow the invite; they may land after the conversion.
var causalOrders = []eventOrder{
	{types.EventInviteSent, types.EventInstall},
	{types.EventInviteSent, types.EventReferralApplied},
	{types.EventInviteSent, types.EventOnboardingComplete},
	{types.EventInviteSent, types.EventSchoolLinked},
	{types.EventInviteSent, types.EventRewardAwarded},
	{types.EventInviteSent, types.EventRewardRedeemed},
	{types.EventInstall, types.EventReferralApplied},
	{types.EventOnboardingComplete, types.EventSchoolLinked},
	{types.EventOnboardingComplete, types.EventRewardAwarded},
	{types.EventSchoolLinked, types.EventRewardAwarded},
	{types.EventRewardAwarded, types.EventRewardRedeemed},
}

func checkCausalOrdering(d *models.Dataset) *CheckResult {
	c := newCheck(CheckCausalOrdering)

	linked := make(map[types.EventType]bool, len(types.ReferralChainOrder))
	for _, t := range types.ReferralChainOrder {
		linked[t] = true
	}

	type bounds struct{ min, max time.Time }
	chains := make(map[int64]map[types.EventType]*bounds)
	for _, e := range d.Events {
		if e.ReferralID == nil {
			continue
		}
		if !linked[e.EventType] {
			c.violate("event %d of type %s must not carry a referral id", e.EventID, e.EventType)
			continue
		}
		chain := chains[*e.ReferralID]
		if chain == nil {
			chain = make(map[types.EventType]*bounds)
			chains[*e.ReferralID] = chain
		}
		b := chain[e.EventType]
		if b == nil {
			chain[e.EventType] = &bounds{min: e.EventAt, max: e.EventAt}
			continue
		}
		if e.EventAt.Before(b.min) {
			b.min = e.EventAt
		}
		if e.EventAt.After(b.max) {
			b.max = e.EventAt
		}
	}

	for _, r := range d.Referrals {
		chain := chains[r.ReferralID]
		for _, o := range causalOrders {
			before, after := chain[o.Before], chain[o.After]
			if before == nil || after == nil {
				continue
			}
			if after.min.Before(before.max) {
				c.violate("referral %d: %s at %s precedes %s at %s", r.ReferralID,
					o.After, after.min.Format(time.RFC3339), o.Before, before.max.Format(time.RFC3339))
			}
		}
		if r.Status == types.ReferralConverted {
			if chain[types.EventInviteSent] == nil {
				c.violate("converted referral %d has no invite_sent", r.ReferralID)
			}
			if chain[types.EventRewardAwarded] == nil {
				c.violate("converted referral %d has no reward_awarded", r.ReferralID)
			}
		}
	}
	return c
}

func checkEmailUniqueness(d *models.Dataset, idx *index) *CheckResult {
	c := newCheck(CheckEmailUniqueness)

	owners := make(map[string]int64, len(d.Users))
	for _, u := range d.Users {
		email := strings.ToLower(u.Email)
		if other, dup := owners[email]; dup {
			c.violate("users %d and %d share email %s", other, u.UserID, email)
			continue
		}
		owners[email] = u.UserID
	}

	targets := make(map[string]int64, len(d.Referrals))
	for _, r := range d.Referrals {
		email := strings.ToLower(r.ReferredEmail)
		if other, dup := targets[email]; dup {
			c.violate("referrals %d and %d target the same email", other, r.ReferralID)
		}
		targets[email] = r.ReferralID

		owner, owned := owners[email]
		switch {
		case r.ReferredUserID != nil && (!owned || owner != *r.ReferredUserID):
			c.violate("referral %d email does not belong to its referred user", r.ReferralID)
		case r.ReferredUserID == nil && owned:
			c.violate("referral %d targets the email of existing user %d", r.ReferralID, owner)
		}
		if u, ok := idx.users[r.ReferrerUserID]; ok && r.Status == types.ReferralConverted && strings.EqualFold(u.Email, r.ReferredEmail) {
			c.violate("referral %d converted a self-referral", r.ReferralID)
		}
	}
	return c
}

func (cc *ConsistencyChecker) checkDeviceCollisions(d *models.Dataset) *CheckResult {
	c := newCheck(CheckDeviceCollisions)
	seen := make(map[string]struct{}, len(d.Users))
	collisions := 0
	for _, u := range d.Users {
		if _, dup := seen[u.DeviceID]; dup {
			collisions++
			continue
		}
		seen[u.DeviceID] = struct{}{}
	}
	if cc.MaxDeviceCollisions >= 0 && collisions > cc.MaxDeviceCollisions {
		c.violate("%d users share a device, bound is %d", collisions, cc.MaxDeviceCollisions)
	}
	return c
}

func checkDerivedFields(d *models.Dataset, idx *index) *CheckResult {
	c := newCheck(CheckDerivedFields)
	for _, p := range d.Products {
		if p.Price <= 0 {
			c.violate("product %d has non-positive price %v", p.ProductID, p.Price)
		}
		switch p.PointsPerDollar {
		case 1, 2, 3, 5:
		default:
			c.violate("product %d has points_per_dollar %d", p.ProductID, p.PointsPerDollar)
		}
	}
	for _, p := range d.Purchases {
		if p.Quantity < 1 {
			c.violate("purchase %d has quantity %d", p.PurchaseID, p.Quantity)
		}
		if p.PricePaid < 0.5 {
			c.violate("purchase %d has price_paid %v", p.PurchaseID, p.PricePaid)
		}
		if p.DayOfWeek != p.PurchasedAt.Weekday().String() {
			c.violate("purchase %d day_of_week %s does not match %s", p.PurchaseID, p.DayOfWeek, p.PurchasedAt.Weekday())
		}
		if p.HourOfDay != int64(p.PurchasedAt.Hour()) {
			c.violate("purchase %d hour_of_day %d does not match %d", p.PurchaseID, p.HourOfDay, p.PurchasedAt.Hour())
		}
		if product, ok := idx.products[p.ProductID]; ok {
			if want := models.PointsFor(p.PricePaid, product.PointsPerDollar); p.PointsEarned != want {
				c.violate("purchase %d points_earned %d, expected %d", p.PurchaseID, p.PointsEarned, want)
			}
		}
	}
	return c
}
