package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/middleware"
	"github.com/clipdigest/backend/internal/models"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	subscriptionapi "github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"
)

type BillingHandler struct {
	cfg      *config.Config
	planSync *services.PlanSyncService
}

func NewBillingHandler(cfg *config.Config, planSync *services.PlanSyncService) *BillingHandler {
	return &BillingHandler{cfg: cfg, planSync: planSync}
}

// InitStripe wires the Stripe API key from config
func InitStripe(cfg *config.Config) {
	stripe.Key = cfg.StripeSecretKey
}

// ensureStripeCustomer finds or creates a Stripe Customer for the user
// and backfills users.stripe_customer_id.
func ensureStripeCustomer(user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_uuid": user.UUID,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("stripe_customer_id", cust.ID).Error; err != nil {
		return "", err
	}

	return cust.ID, nil
}

// CreateCheckoutSession starts a Stripe Checkout Session for a plan upgrade
func (h *BillingHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	var priceID string
	switch models.PlanTier(req.Plan) {
	case models.PlanPro:
		priceID = h.cfg.StripePriceIDPro
	case models.PlanEnterprise:
		priceID = h.cfg.StripePriceIDEnterprise
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid plan",
		})
	}

	frontendURL := strings.TrimRight(h.cfg.FrontendURL, "/")
	if priceID == "" || h.cfg.StripeSecretKey == "" {
		log.Printf("Billing: checkout requested but Stripe is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Billing is not configured",
		})
	}

	customerID, err := ensureStripeCustomer(user)
	if err != nil {
		log.Printf("Billing: ensureStripeCustomer failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to prepare billing",
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	}

	sess, err := session.New(params)
	if err != nil {
		log.Printf("Billing: checkout session failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create checkout session",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"url":     sess.URL,
	})
}

// CreatePortalSession creates a Stripe Customer Portal session so users
// can manage payment methods and cancel on their own.
func (h *BillingHandler) CreatePortalSession(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No billing account for this user",
		})
	}

	frontendURL := strings.TrimRight(h.cfg.FrontendURL, "/")
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(frontendURL + "/settings/billing"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("Billing: portal session failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create portal session",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"url":     sess.URL,
	})
}

// Webhook receives Stripe events. The signature is checked before the
// payload is interpreted at all; a bad signature is the only 400.
// Unknown event types and verified-but-unparseable payloads are
// acknowledged with a 200 so Stripe stops retrying them. Only a failed
// plan sync returns a 5xx, which is what makes Stripe redeliver.
func (h *BillingHandler) Webhook(c *fiber.Ctx) error {
	if h.cfg.StripeWebhookSecret == "" {
		log.Printf("Billing: webhook received but no webhook secret configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Webhook is not configured",
		})
	}

	event, err := webhook.ConstructEventWithOptions(
		c.Body(),
		c.Get("Stripe-Signature"),
		h.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("Billing: webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Signature verification failed",
		})
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			// Signature already checked: a payload we cannot parse is
			// Stripe's shape drifting, not an attacker. Retrying won't
			// help, so acknowledge it.
			log.Printf("Billing: unparseable subscription payload in %s: %v", event.Type, err)
			break
		}
		if err := h.planSync.ApplySubscription(&sub, ""); err != nil {
			log.Printf("Billing: plan sync failed for %s: %v", event.Type, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to sync plan",
			})
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("Billing: unparseable subscription payload in delete: %v", err)
			break
		}
		if err := h.planSync.ApplySubscriptionDeleted(&sub); err != nil {
			log.Printf("Billing: plan sync failed on cancellation: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to sync plan",
			})
		}

	case "checkout.session.completed":
		if err := h.handleCheckoutCompleted(event.Data.Raw); err != nil {
			log.Printf("Billing: checkout completion sync failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to sync plan",
			})
		}

	case "invoice.payment_succeeded":
		log.Printf("Billing: invoice paid, event %s", event.ID)

	case "invoice.payment_failed":
		log.Printf("Billing: invoice payment FAILED, event %s", event.ID)

	default:
		log.Printf("Billing: ignoring event type %s", event.Type)
	}

	return c.JSON(fiber.Map{"received": true})
}

// handleCheckoutCompleted resolves the subscription behind a finished
// checkout and syncs it. The session carries the buyer's email, which
// is the fallback match for accounts created before billing was wired.
func (h *BillingHandler) handleCheckoutCompleted(raw json.RawMessage) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		log.Printf("Billing: unparseable checkout session payload: %v", err)
		return nil
	}

	// One-time payments have no subscription to sync
	if sess.Mode != stripe.CheckoutSessionModeSubscription || sess.Subscription == nil {
		return nil
	}

	// The embedded subscription is usually just an ID, so fetch the
	// full object to get price and period fields.
	sub := sess.Subscription
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		full, err := subscriptionapi.Get(sub.ID, nil)
		if err != nil {
			return err
		}
		sub = full
	}

	email := ""
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}

	return h.planSync.ApplySubscription(sub, email)
}

// Status reports the caller's current plan and billing state
func (h *BillingHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var fresh models.User
	if err := database.DB.First(&fresh, user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load billing state",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"plan":               fresh.Plan,
			"current_period_end": fresh.CurrentPeriodEnd,
			"has_subscription":   fresh.StripeSubscriptionID != nil,
		},
	})
}
