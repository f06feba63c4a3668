package services

import (
	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/models"
)

// Period is the window a plan's usage limit applies to
type Period string

const (
	PeriodLifetime Period = "lifetime"
	PeriodMonthly  Period = "monthly"
)

// Entitlement is the usage allowance a plan tier grants
type Entitlement struct {
	Limit  int    `json:"limit"`
	Period Period `json:"period"`
}

// Effectively unlimited. Enterprise accounts still get a finite number
// so the gate arithmetic never overflows.
const enterpriseLimit = 1_000_000

var planEntitlements = map[models.PlanTier]Entitlement{
	models.PlanAnonymous:  {Limit: 1, Period: PeriodLifetime},
	models.PlanFree:       {Limit: 3, Period: PeriodLifetime},
	models.PlanPro:        {Limit: 25, Period: PeriodMonthly},
	models.PlanEnterprise: {Limit: enterpriseLimit, Period: PeriodMonthly},
}

// LimitFor returns the entitlement for a plan tier. Unrecognized tiers
// get the FREE entitlement rather than zero, so a bad plan value in the
// database degrades a user instead of locking them out.
func LimitFor(plan models.PlanTier) Entitlement {
	if e, ok := planEntitlements[plan]; ok {
		return e
	}
	return planEntitlements[models.PlanFree]
}

// PlanForPriceID maps a Stripe price ID to a plan tier. Unmapped price
// IDs map to FREE instead of failing, so a webhook carrying a price we
// don't recognize can never wedge a user in an unsyncable state.
func PlanForPriceID(cfg *config.Config, priceID string) models.PlanTier {
	switch {
	case priceID != "" && priceID == cfg.StripePriceIDPro:
		return models.PlanPro
	case priceID != "" && priceID == cfg.StripePriceIDEnterprise:
		return models.PlanEnterprise
	default:
		return models.PlanFree
	}
}
