// Package types provides common type definitions for the loyalty dataset generator.
package types

// UserType represents the role a user plays in the school community
type UserType string

const (
	// UserTypeParent represents a parent of an enrolled student
	UserTypeParent UserType = "parent"
	// UserTypeTeacher represents school staff
	UserTypeTeacher UserType = "teacher"
	// UserTypeSupporter represents any other community supporter
	UserTypeSupporter UserType = "supporter"
)

// UserTypes lists every user type in sampling order
var UserTypes = []UserType{UserTypeParent, UserTypeTeacher, UserTypeSupporter}

// MarketingChannel represents how a user was acquired
type MarketingChannel string

const (
	ChannelOrganic        MarketingChannel = "organic"
	ChannelPaidSocial     MarketingChannel = "paid_social"
	ChannelPaidSearch     MarketingChannel = "paid_search"
	ChannelInfluencer     MarketingChannel = "influencer"
	ChannelPartner        MarketingChannel = "partner"
	ChannelSchoolCampaign MarketingChannel = "school_campaign"
	// ChannelReferral is only assigned to users materialized from a conversion
	ChannelReferral MarketingChannel = "referral"
)

// ReferralStatus represents how far a referral progressed through the funnel
type ReferralStatus string

const (
	// ReferralSent represents an invite that was never opened
	ReferralSent ReferralStatus = "sent"
	// ReferralClicked represents an invite that was opened but did not convert
	ReferralClicked ReferralStatus = "clicked"
	// ReferralConverted represents an invite that produced a new user
	ReferralConverted ReferralStatus = "converted"
)

// EventType represents an app lifecycle event
type EventType string

const (
	EventInstall              EventType = "install"
	EventAppOpen              EventType = "app_open"
	EventInviteSent           EventType = "invite_sent"
	EventReferralApplied      EventType = "referral_applied"
	EventOnboardingComplete   EventType = "onboarding_complete"
	EventSchoolLinked         EventType = "school_linked"
	EventRewardAwarded        EventType = "reward_awarded"
	EventRewardRedeemed       EventType = "reward_redeemed"
	EventReceiptScanStarted   EventType = "receipt_scan_started"
	EventReceiptScanCompleted EventType = "receipt_scan_completed"
	EventIncentiveViewed      EventType = "incentive_viewed"
)

// ReferralChainOrder lists the referral-linked event types in lifecycle order
var ReferralChainOrder = []EventType{
	EventInviteSent,
	EventInstall,
	EventReferralApplied,
	EventOnboardingComplete,
	EventSchoolLinked,
	EventRewardAwarded,
	EventRewardRedeemed,
}

// RewardType identifies which side of a referral a reward was paid to
type RewardType string

const (
	RewardReferrerBonus RewardType = "referrer_bonus"
	RewardReferredBonus RewardType = "referred_bonus"
)

// DropReason explains why a candidate record or transition was not emitted
type DropReason string

const (
	// DropBeforeWindowStart represents a timestamp computed before the analytics window
	DropBeforeWindowStart DropReason = "before_window_start"
	// DropAfterWindowEnd represents a timestamp computed after the analytics window
	DropAfterWindowEnd DropReason = "after_window_end"
	// DropConversionOutsideWindow represents a conversion reverted because converted_at left the window
	DropConversionOutsideWindow DropReason = "conversion_outside_window"
	// DropSelfReferral represents a conversion reverted because the referrer invited themselves
	DropSelfReferral DropReason = "abuse_guard_self_referral"
	// DropAbusePenalty represents a conversion reverted by the random abuse penalty
	DropAbusePenalty DropReason = "abuse_guard_random"
	// DropScanFailed represents a receipt scan that never completed
	DropScanFailed DropReason = "scan_failed"
	// DropNotRedeemed represents a reward that was never redeemed
	DropNotRedeemed DropReason = "not_redeemed"
	// DropNotSampled represents an optional record whose Bernoulli gate failed
	DropNotSampled DropReason = "not_sampled"
	// DropNoReferredUser represents a referral step that needs a referred user that does not exist
	DropNoReferredUser DropReason = "no_referred_user"
	// DropBeforeUserCreated represents activity timestamped before its user existed
	DropBeforeUserCreated DropReason = "before_user_created"
	// DropOutOfCausalOrder represents a referral event that would precede an earlier chain step
	// or follow the reward it leads up to
	DropOutOfCausalOrder DropReason = "out_of_causal_order"
)
