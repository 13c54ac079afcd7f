package entropy

import (
	"fmt"
	"strings"
)

const (
	lowerAlphaNum = "abcdefghijklmnopqrstuvwxyz0123456789"
	upperAlphaNum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	lowerAlpha    = "abcdefghijklmnopqrstuvwxyz"

	// DevicePrefix is the literal prefix of every device id
	DevicePrefix = "dev_"
	// ReferralCodePrefix is the literal prefix of every referral code
	ReferralCodePrefix = "CC"
)

// EmailDomains are the public domains synthetic emails are drawn from
var EmailDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "icloud.com", "proton.me"}

// EmailTaken reports whether a lower-cased email is already in use
type EmailTaken func(email string) bool

func (s *Source) randomString(alphabet string, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[s.rng.IntN(len(alphabet))])
	}
	return b.String()
}

// DeviceID returns "dev_" followed by 16 lowercase alphanumeric characters
func (s *Source) DeviceID() string {
	return DevicePrefix + s.randomString(lowerAlphaNum, 16)
}

// ReferralCode returns "CC", the referrer id zero-padded to 5 digits and
// 5 uppercase alphanumeric characters
func (s *Source) ReferralCode(referrerID int64) string {
	return fmt.Sprintf("%s%05d%s", ReferralCodePrefix, referrerID, s.randomString(upperAlphaNum, 5))
}

// Email returns a random handle of 5-10 lowercase letters plus a 1-4 digit suffix at a public domain
func (s *Source) Email() string {
	handle := s.randomString(lowerAlpha, s.IntRange(5, 10))
	return fmt.Sprintf("%s%d@%s", handle, s.IntRange(1, 9999), Choice(s, EmailDomains))
}

// UniqueEmail rejection-samples emails until one is not taken (compared lower-cased).
// There is no attempt cap: the handle space is far larger than any configured population.
func (s *Source) UniqueEmail(taken EmailTaken) string {
	for {
		email := s.Email()
		if !taken(strings.ToLower(email)) {
			return email
		}
	}
}
