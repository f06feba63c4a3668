package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PlanTier represents the billing plan a user belongs to
type PlanTier string

const (
	PlanAnonymous  PlanTier = "anonymous"
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// UserRole represents the type of user
type UserRole int

const (
	RoleMember UserRole = 1
	RoleAdmin  UserRole = 2
)

// MarshalJSON converts UserRole to string for JSON
func (r UserRole) MarshalJSON() ([]byte, error) {
	var s string
	switch r {
	case RoleMember:
		s = "member"
	case RoleAdmin:
		s = "admin"
	default:
		s = "unknown"
	}
	return json.Marshal(s)
}

// UnmarshalJSON converts string back to UserRole for JSON parsing
func (r *UserRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as integer for backward compatibility
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*r = UserRole(i)
		return nil
	}
	switch s {
	case "admin":
		*r = RoleAdmin
	default:
		*r = RoleMember
	}
	return nil
}

// User represents an account holder.
// StripeCustomerID and StripeSubscriptionID are unique so a billing
// event can never attach to more than one local account.
type User struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	UUID     string `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Email    string `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	Username string `gorm:"column:username;size:100;uniqueIndex;not null" json:"username"`
	Password string `gorm:"column:password;size:255;not null" json:"-"`
	FullName string `gorm:"column:full_name;size:255" json:"full_name"`
	Role     UserRole `gorm:"column:role;default:1" json:"role"`

	// Billing state, written by the plan synchronizer
	Plan                 PlanTier   `gorm:"column:plan;size:20;default:free;index" json:"plan"`
	StripeCustomerID     *string    `gorm:"column:stripe_customer_id;size:100;uniqueIndex" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `gorm:"column:stripe_subscription_id;size:100;uniqueIndex" json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end" json:"current_period_end,omitempty"`

	// 2FA fields
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`

	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	LastLogin *time.Time     `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
