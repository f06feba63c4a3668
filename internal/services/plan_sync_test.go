package services

import (
	"testing"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func testBillingConfig() *config.Config {
	return &config.Config{
		StripePriceIDPro:        "price_pro_monthly",
		StripePriceIDEnterprise: "price_ent_monthly",
	}
}

func testSubscription(customerID, subID, priceID string, periodEnd int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:               subID,
		Customer:         &stripe.Customer{ID: customerID},
		CurrentPeriodEnd: periodEnd,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: priceID}},
			},
		},
	}
}

func TestSyncUserPlanUpgrade(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	customerID := "cus_123"
	subID := "sub_123"
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)

	require.NoError(t, svc.SyncUserPlan(user.ID, models.PlanPro, &customerID, &subID, &periodEnd))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
	require.NotNil(t, got.StripeCustomerID)
	require.Equal(t, "cus_123", *got.StripeCustomerID)
	require.NotNil(t, got.StripeSubscriptionID)
	require.Equal(t, "sub_123", *got.StripeSubscriptionID)
	require.NotNil(t, got.CurrentPeriodEnd)
	require.WithinDuration(t, periodEnd, *got.CurrentPeriodEnd, time.Second)
}

func TestSyncUserPlanIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	customerID := "cus_123"
	subID := "sub_123"
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)

	// Replayed webhook deliveries apply the same write twice
	require.NoError(t, svc.SyncUserPlan(user.ID, models.PlanPro, &customerID, &subID, &periodEnd))
	require.NoError(t, svc.SyncUserPlan(user.ID, models.PlanPro, &customerID, &subID, &periodEnd))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
	require.Equal(t, "sub_123", *got.StripeSubscriptionID)
}

func TestSyncUserPlanDowngradeClearsSubscription(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	customerID := "cus_123"
	subID := "sub_123"
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	require.NoError(t, svc.SyncUserPlan(user.ID, models.PlanPro, &customerID, &subID, &periodEnd))

	require.NoError(t, svc.SyncUserPlan(user.ID, models.PlanFree, nil, nil, nil))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeSubscriptionID)
	require.Nil(t, got.CurrentPeriodEnd)
	// Customer ID survives the downgrade so a re-subscription matches
	require.NotNil(t, got.StripeCustomerID)
	require.Equal(t, "cus_123", *got.StripeCustomerID)
}

func TestApplySubscriptionByCustomerID(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	customerID := "cus_existing"
	require.NoError(t, db.Model(user).Update("stripe_customer_id", customerID).Error)

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	sub := testSubscription(customerID, "sub_new", "price_pro_monthly", periodEnd)

	require.NoError(t, svc.ApplySubscription(sub, ""))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
	require.Equal(t, "sub_new", *got.StripeSubscriptionID)
	require.Equal(t, periodEnd, got.CurrentPeriodEnd.Unix())
}

func TestApplySubscriptionEmailFallbackBackfillsCustomerID(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	// No customer ID stored yet; the event matches on email and the
	// sync backfills the customer ID for next time.
	sub := testSubscription("cus_fresh", "sub_fresh", "price_pro_monthly", 0)
	require.NoError(t, svc.ApplySubscription(sub, user.Email))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
	require.NotNil(t, got.StripeCustomerID)
	require.Equal(t, "cus_fresh", *got.StripeCustomerID)
}

func TestApplySubscriptionUnresolvedIsDropped(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	// Unknown customer and no matching email: logged and dropped, not
	// an error, so the webhook acks instead of retrying forever.
	sub := testSubscription("cus_unknown", "sub_x", "price_pro_monthly", 0)
	require.NoError(t, svc.ApplySubscription(sub, "nobody@example.com"))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeSubscriptionID)
}

func TestApplySubscriptionUnmappedPriceMapsToFree(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanPro)

	customerID := "cus_123"
	require.NoError(t, db.Model(user).Update("stripe_customer_id", customerID).Error)

	sub := testSubscription(customerID, "sub_odd", "price_from_the_future", 0)
	require.NoError(t, svc.ApplySubscription(sub, ""))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
}

func TestApplySubscriptionDeleted(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())
	user := createTestUser(t, db, models.PlanFree)

	customerID := "cus_123"
	subID := "sub_123"
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	require.NoError(t, svc.SyncUserPlan(user.ID, models.PlanPro, &customerID, &subID, &periodEnd))

	sub := &stripe.Subscription{
		ID:       subID,
		Customer: &stripe.Customer{ID: customerID},
	}
	require.NoError(t, svc.ApplySubscriptionDeleted(sub))

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeSubscriptionID)
	require.Nil(t, got.CurrentPeriodEnd)
	require.Equal(t, "cus_123", *got.StripeCustomerID)
}

func TestApplySubscriptionDeletedUnresolvedIsDropped(t *testing.T) {
	db := openTestDB(t)
	svc := NewPlanSyncService(db, testBillingConfig())

	sub := &stripe.Subscription{
		ID:       "sub_x",
		Customer: &stripe.Customer{ID: "cus_unknown"},
	}
	require.NoError(t, svc.ApplySubscriptionDeleted(sub))
}
