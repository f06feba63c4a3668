package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/models"
	"gorm.io/gorm"
)

// UsageLimitResult is the outcome of a usage check. It is a decision,
// not an enforcement action: callers that perform the billable write
// must go through EnforceUsageLimit immediately before the insert.
type UsageLimitResult struct {
	Allowed   bool   `json:"allowed"`
	Limit     int    `json:"limit"`
	Current   int    `json:"current"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// QuotaExceededError carries the counts the frontend shows the user
type QuotaExceededError struct {
	Current int
	Limit   int
	Reason  string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s (%d/%d)", e.Reason, e.Current, e.Limit)
}

// UsageService counts billable summaries against plan entitlements.
// Reads only; it never blocks the subsequent write itself, so two
// concurrent requests can each pass the check and overshoot the limit
// by the number of in-flight requests. That trade-off is deliberate:
// the check and the insert stay separate operations so a transactional
// guard can be added around the pair later without changing callers.
type UsageService struct {
	db *gorm.DB
}

func NewUsageService(db *gorm.DB) *UsageService {
	return &UsageService{db: db}
}

// CountUsage returns the number of non-archived summaries owned by
// userID within the period window. Monthly windows start at the first
// instant of the current calendar month, in UTC.
func (s *UsageService) CountUsage(userID uint, period Period) (int, error) {
	query := s.db.Model(&models.Summary{}).
		Where("user_id = ? AND archived = ?", userID, false)

	if period == PeriodMonthly {
		now := time.Now().UTC()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("created_at >= ?", monthStart)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count usage for user %d: %w", userID, err)
	}
	return int(count), nil
}

// CheckUsageLimit decides whether userID may create another summary.
// A missing user is a denied check, not an error; a failing database
// is an error, never a silent "allowed".
func (s *UsageService) CheckUsageLimit(userID uint) (*UsageLimitResult, error) {
	plan, err := s.resolvePlan(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &UsageLimitResult{
				Allowed: false,
				Reason:  "User not found",
			}, nil
		}
		return nil, err
	}

	ent := LimitFor(plan)

	current, err := s.CountUsage(userID, ent.Period)
	if err != nil {
		return nil, err
	}

	result := &UsageLimitResult{
		Allowed:   current < ent.Limit,
		Limit:     ent.Limit,
		Current:   current,
		Remaining: max(0, ent.Limit-current),
	}
	if !result.Allowed {
		result.Reason = limitReason(ent.Period)
	}
	return result, nil
}

// CheckAnonymousUsage gates unauthenticated callers by their client
// fingerprint against the anonymous entitlement.
func (s *UsageService) CheckAnonymousUsage(fingerprint string) (*UsageLimitResult, error) {
	ent := LimitFor(models.PlanAnonymous)

	var count int64
	err := s.db.Model(&models.Summary{}).
		Where("fingerprint = ? AND user_id IS NULL AND archived = ?", fingerprint, false).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count anonymous usage: %w", err)
	}

	current := int(count)
	result := &UsageLimitResult{
		Allowed:   current < ent.Limit,
		Limit:     ent.Limit,
		Current:   current,
		Remaining: max(0, ent.Limit-current),
	}
	if !result.Allowed {
		result.Reason = limitReason(ent.Period)
	}
	return result, nil
}

// EnforceUsageLimit runs the check and converts a denial into a typed
// error. Call immediately before the billable insert.
func (s *UsageService) EnforceUsageLimit(userID uint) error {
	result, err := s.CheckUsageLimit(userID)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &QuotaExceededError{
			Current: result.Current,
			Limit:   result.Limit,
			Reason:  result.Reason,
		}
	}
	return nil
}

// EnforceAnonymousLimit is EnforceUsageLimit for unauthenticated callers
func (s *UsageService) EnforceAnonymousLimit(fingerprint string) error {
	result, err := s.CheckAnonymousUsage(fingerprint)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &QuotaExceededError{
			Current: result.Current,
			Limit:   result.Limit,
			Reason:  result.Reason,
		}
	}
	return nil
}

// resolvePlan returns the user's plan tier, from the Redis plan cache
// when possible. The cache is safe here because the plan synchronizer
// invalidates it on every write.
func (s *UsageService) resolvePlan(userID uint) (models.PlanTier, error) {
	if cached := database.GetCachedPlan(userID); cached != nil {
		return models.PlanTier(cached.Plan), nil
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		return "", fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	database.SetCachedPlan(&database.CachedPlan{
		UserID:           user.ID,
		Plan:             string(user.Plan),
		CurrentPeriodEnd: user.CurrentPeriodEnd,
	})

	return user.Plan, nil
}

func limitReason(period Period) string {
	if period == PeriodMonthly {
		return "Monthly limit reached"
	}
	return "Lifetime limit reached"
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
