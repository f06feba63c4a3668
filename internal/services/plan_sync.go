package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/models"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
)

// ErrUnresolvedSubscriber means a billing event referenced a customer
// with no matching local account by customer ID or email.
var ErrUnresolvedSubscriber = errors.New("no local user for billing customer")

// PlanSyncService reconciles Stripe subscription state into the local
// user record. Every write has set semantics, so replayed webhook
// deliveries are harmless without any event-ID bookkeeping.
type PlanSyncService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewPlanSyncService(db *gorm.DB, cfg *config.Config) *PlanSyncService {
	return &PlanSyncService{db: db, cfg: cfg}
}

// SyncUserPlan writes the target billing state onto the user row.
// Downgrading to FREE clears the subscription ID and period end; the
// customer ID is kept so a later re-subscription still matches.
func (s *PlanSyncService) SyncUserPlan(userID uint, plan models.PlanTier, customerID, subscriptionID *string, periodEnd *time.Time) error {
	updates := map[string]interface{}{
		"plan": plan,
	}

	if customerID != nil {
		updates["stripe_customer_id"] = *customerID
	}

	if plan == models.PlanFree || plan == models.PlanAnonymous {
		updates["stripe_subscription_id"] = nil
		updates["current_period_end"] = nil
	} else {
		if subscriptionID != nil {
			updates["stripe_subscription_id"] = *subscriptionID
		}
		updates["current_period_end"] = periodEnd
	}

	result := s.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to sync plan for user %d: %w", userID, result.Error)
	}

	// Stale entitlement reads are a correctness bug, so the cache entry
	// goes away on every write, even a no-op one.
	database.InvalidatePlanCache(userID)

	log.Printf("PlanSync: user %d set to plan %s", userID, plan)
	return nil
}

// ApplySubscription handles subscription created/updated events. The
// email, when the event carries one, is the fallback lookup for users
// whose customer ID has not been backfilled yet.
func (s *PlanSyncService) ApplySubscription(sub *stripe.Subscription, email string) error {
	if sub == nil || sub.Customer == nil {
		log.Printf("PlanSync: subscription event missing customer, dropping")
		return nil
	}

	user, err := s.resolveUser(sub.Customer.ID, email)
	if err != nil {
		if errors.Is(err, ErrUnresolvedSubscriber) {
			// Stripe retries undelivered webhooks on its own; if this
			// was a race with account creation a later delivery wins.
			log.Printf("PlanSync: unresolved subscriber customer=%s email=%q, dropping event", sub.Customer.ID, email)
			return nil
		}
		return err
	}

	plan := PlanForPriceID(s.cfg, subscriptionPriceID(sub))

	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	customerID := sub.Customer.ID
	subscriptionID := sub.ID
	return s.SyncUserPlan(user.ID, plan, &customerID, &subscriptionID, periodEnd)
}

// ApplySubscriptionDeleted handles cancellation: back to FREE with the
// subscription ID and period end cleared.
func (s *PlanSyncService) ApplySubscriptionDeleted(sub *stripe.Subscription) error {
	if sub == nil || sub.Customer == nil {
		log.Printf("PlanSync: subscription delete event missing customer, dropping")
		return nil
	}

	user, err := s.resolveUser(sub.Customer.ID, "")
	if err != nil {
		if errors.Is(err, ErrUnresolvedSubscriber) {
			log.Printf("PlanSync: unresolved subscriber customer=%s on delete, dropping event", sub.Customer.ID)
			return nil
		}
		return err
	}

	return s.SyncUserPlan(user.ID, models.PlanFree, nil, nil, nil)
}

// resolveUser finds the local account for a Stripe customer, by
// customer ID first, then by the email Stripe reported.
func (s *PlanSyncService) resolveUser(customerID, email string) (*models.User, error) {
	var user models.User

	err := s.db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up customer %s: %w", customerID, err)
	}

	if email == "" {
		return nil, ErrUnresolvedSubscriber
	}

	err = s.db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return nil, ErrUnresolvedSubscriber
}

// subscriptionPriceID pulls the price ID off the subscription's first
// line item. Multi-item subscriptions are not sold here.
func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}
