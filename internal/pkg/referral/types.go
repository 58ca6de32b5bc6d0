package referral

import (
	"errors"
	"time"

	"github.com/Resonant-Projects/parkpick/app/models"
)

// Business windows and limits for the referral program.
const (
	ConversionDelay     = 48 * time.Hour
	ExpiryAge           = 90 * 24 * time.Hour
	ExpireBatchSize     = 100
	MaxRewardsTotal     = 12
	MaxRewardsPer30Days = 3
	RewardWindow        = 30 * 24 * time.Hour
)

// Validation reasons returned as normal business outcomes, never as errors.
const (
	ReasonSelfReferral        = "self_referral"
	ReasonAlreadyReferred     = "already_referred"
	ReasonInvalidCode         = "invalid_code"
	ReasonTooSoon             = "too_soon"
	ReasonAlreadyConverted    = "already_converted"
	ReasonNotPending          = "not_pending"
	ReasonNoReferral          = "no_referral"
	ReasonMaxTotalReached     = "max_total_reached"
	ReasonMonthlyLimitReached = "monthly_limit_reached"
	ReasonRewardPendingRetry  = "reward_pending_retry"

	ReasonIPMatch         = "ip_match_existing_referral"
	ReasonDeviceMatch     = "device_match_existing_referral"
	ReasonIPVelocity      = "ip_velocity_exceeded"
	ReasonDeviceVelocity  = "device_velocity_exceeded"
	ReasonCodeHourlyLimit = "code_hourly_limit_reached"
	ReasonCodeDailyLimit  = "code_daily_limit_reached"
)

// Contract violations. These indicate a caller bug, not a business condition.
var (
	ErrNotFound          = errors.New("referral not found")
	ErrInvalidTransition = errors.New("referral status transition not allowed")
)

// CreateInput is what the signup flow hands to the ledger. Fingerprints are
// best-effort SHA-256 hashes; empty values skip the matching signals.
type CreateInput struct {
	Code       string
	RefereeID  uint
	IPHash     string
	DeviceHash string
}

// Result is the typed outcome of a ledger operation. Reason is set whenever
// OK is false.
type Result struct {
	OK       bool
	Reason   string
	Referral *models.Referral
}

// ConversionOutcome reports what HandleConversion achieved. Converted may be
// true while Rewarded is false: conversion is never rolled back because a
// reward failed or was blocked by limits.
type ConversionOutcome struct {
	Converted bool
	Rewarded  bool
	Reason    string
	Referral  *models.Referral
	Grant     *models.RewardGrant
}

func failure(reason string) *Result {
	return &Result{OK: false, Reason: reason}
}
