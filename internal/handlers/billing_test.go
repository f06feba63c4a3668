package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/models"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Summary{}, &models.AuditLog{}))
	return db
}

func newWebhookApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	cfg := &config.Config{
		StripeWebhookSecret:     testWebhookSecret,
		StripePriceIDPro:        "price_pro_monthly",
		StripePriceIDEnterprise: "price_ent_monthly",
	}
	handler := NewBillingHandler(cfg, services.NewPlanSyncService(db, cfg))

	app := fiber.New()
	app.Post("/api/billing/webhook", handler.Webhook)
	return app
}

// signPayload builds a Stripe-Signature header the way Stripe does:
// v1 is an HMAC-SHA256 of "<timestamp>.<payload>" keyed by the secret.
func signPayload(payload []byte, secret string, ts time.Time) string {
	signed := fmt.Sprintf("%d.%s", ts.Unix(), payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func createBillingUser(t *testing.T, db *gorm.DB, customerID string) *models.User {
	t.Helper()

	user := &models.User{
		UUID:     uuid.New().String(),
		Email:    uuid.New().String() + "@example.com",
		Username: "u-" + uuid.New().String()[:8],
		Password: "hashed",
		Plan:     models.PlanFree,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	if customerID != "" {
		require.NoError(t, db.Model(user).Update("stripe_customer_id", customerID).Error)
	}
	return user
}

func subscriptionEvent(eventType, subID, customerID, priceID string, periodEnd int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test",
		"object": "event",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "subscription",
				"customer": %q,
				"current_period_end": %d,
				"items": {
					"object": "list",
					"data": [
						{
							"id": "si_test",
							"object": "subscription_item",
							"price": {"id": %q, "object": "price"}
						}
					]
				}
			}
		}
	}`, eventType, subID, customerID, periodEnd, priceID))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "cus_123")

	payload := subscriptionEvent("customer.subscription.updated", "sub_123", "cus_123", "price_pro_monthly", 1900000000)

	// Signed with the wrong secret
	resp := postWebhook(t, app, payload, signPayload(payload, "whsec_wrong", time.Now()))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// The payload was never interpreted
	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeSubscriptionID)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)

	payload := subscriptionEvent("customer.subscription.updated", "sub_123", "cus_123", "price_pro_monthly", 0)
	resp := postWebhook(t, app, payload, "")
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWebhookSubscriptionUpgrade(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "cus_123")

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	payload := subscriptionEvent("customer.subscription.updated", "sub_123", "cus_123", "price_pro_monthly", periodEnd)

	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["received"])

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
	require.Equal(t, "sub_123", *got.StripeSubscriptionID)
	require.Equal(t, periodEnd, got.CurrentPeriodEnd.Unix())
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "cus_123")

	payload := subscriptionEvent("customer.subscription.updated", "sub_123", "cus_123", "price_pro_monthly", 1900000000)

	for i := 0; i < 2; i++ {
		resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "cus_123")

	subID := "sub_123"
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	customerID := "cus_123"
	planSync := services.NewPlanSyncService(db, &config.Config{})
	require.NoError(t, planSync.SyncUserPlan(user.ID, models.PlanPro, &customerID, &subID, &periodEnd))

	payload := subscriptionEvent("customer.subscription.deleted", "sub_123", "cus_123", "price_pro_monthly", 0)
	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeSubscriptionID)
	require.Nil(t, got.CurrentPeriodEnd)
	require.Equal(t, "cus_123", *got.StripeCustomerID)
}

func TestWebhookUnknownEventIsAcknowledged(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "cus_123")

	payload := []byte(`{
		"id": "evt_test",
		"object": "event",
		"type": "customer.tax_id.created",
		"data": {"object": {"id": "txi_test", "object": "tax_id"}}
	}`)

	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["received"])

	// Nothing changed
	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
}

func TestWebhookUnresolvedCustomerIsAcknowledged(t *testing.T) {
	// A subscription for a customer we cannot match is dropped with a
	// 200 so Stripe does not redeliver it forever.
	db := openTestDB(t)
	app := newWebhookApp(t, db)

	payload := subscriptionEvent("customer.subscription.updated", "sub_x", "cus_unknown", "price_pro_monthly", 0)
	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func checkoutCompletedEvent(email, subID, customerID, priceID string, periodEnd int64) []byte {
	// The subscription is embedded with its items so the handler does
	// not have to fetch the full object from the API.
	return []byte(fmt.Sprintf(`{
		"id": "evt_test",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test",
				"object": "checkout.session",
				"mode": "subscription",
				"customer": %q,
				"customer_details": {"email": %q},
				"subscription": {
					"id": %q,
					"object": "subscription",
					"customer": %q,
					"current_period_end": %d,
					"items": {
						"object": "list",
						"data": [
							{
								"id": "si_test",
								"object": "subscription_item",
								"price": {"id": %q, "object": "price"}
							}
						]
					}
				}
			}
		}
	}`, customerID, email, subID, customerID, periodEnd, priceID))
}

func TestWebhookCheckoutCompletedMatchesByEmail(t *testing.T) {
	// A user who checked out before we stored their Stripe customer ID
	// is matched by the buyer email on the session and backfilled.
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "")

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	payload := checkoutCompletedEvent(user.Email, "sub_chk", "cus_new", "price_pro_monthly", periodEnd)

	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanPro, got.Plan)
	require.NotNil(t, got.StripeCustomerID)
	require.Equal(t, "cus_new", *got.StripeCustomerID)
	require.NotNil(t, got.StripeSubscriptionID)
	require.Equal(t, "sub_chk", *got.StripeSubscriptionID)
	require.Equal(t, periodEnd, got.CurrentPeriodEnd.Unix())
}

func TestWebhookCheckoutCompletedPaymentModeIsAcknowledged(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "")

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_test",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test",
				"object": "checkout.session",
				"mode": "payment",
				"customer_details": {"email": %q}
			}
		}
	}`, user.Email))

	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeCustomerID)
}

func TestWebhookMalformedPayloadIsAcknowledged(t *testing.T) {
	// A verified event whose object does not parse is Stripe changing
	// shape on us, not a routing failure; retrying cannot fix it, so it
	// must be acknowledged rather than rejected.
	db := openTestDB(t)
	app := newWebhookApp(t, db)
	user := createBillingUser(t, db, "cus_123")

	for _, eventType := range []string{
		"customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
	} {
		payload := []byte(fmt.Sprintf(`{
			"id": "evt_test",
			"object": "event",
			"type": %q,
			"data": {
				"object": {
					"id": "sub_123",
					"object": "subscription",
					"customer": "cus_123",
					"current_period_end": "soon"
				}
			}
		}`, eventType))

		resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
		require.Equal(t, fiber.StatusOK, resp.StatusCode, eventType)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, true, body["received"], eventType)
	}

	// The broken payloads never touched billing state
	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.Equal(t, models.PlanFree, got.Plan)
	require.Nil(t, got.StripeSubscriptionID)
}

func TestWebhookMalformedCheckoutSessionIsAcknowledged(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)

	payload := []byte(`{
		"id": "evt_test",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test",
				"object": "checkout.session",
				"amount_total": "not-a-number"
			}
		}
	}`)

	resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhookInvoiceEventsAreAcknowledged(t *testing.T) {
	db := openTestDB(t)
	app := newWebhookApp(t, db)

	for _, eventType := range []string{"invoice.payment_succeeded", "invoice.payment_failed"} {
		payload := []byte(fmt.Sprintf(`{
			"id": "evt_test",
			"object": "event",
			"type": %q,
			"data": {"object": {"id": "in_test", "object": "invoice"}}
		}`, eventType))

		resp := postWebhook(t, app, payload, signPayload(payload, testWebhookSecret, time.Now()))
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
