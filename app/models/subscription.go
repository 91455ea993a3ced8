package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusTrialing = "trialing"
)

// Subscription tracks the plan and credit ledger for exactly one user.
// CreditsUsed is only ever mutated through the conditional updates in the
// subscription repository; plain Save calls on this struct must not be used
// to move the ledger.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	User                 User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	StripeCustomerID     *string    `gorm:"type:varchar(191);index;default:null" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `gorm:"type:varchar(191);default:null" json:"stripe_subscription_id,omitempty"`
	Tier                 string     `gorm:"type:varchar(32);not null;default:'discovery';index" json:"tier"`
	MonthlyCredits       int        `gorm:"not null;default:1" json:"monthly_credits"`
	CreditsUsed          int        `gorm:"not null;default:0" json:"credits_used"`
	Status               string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CanGenerate reports whether the ledger still has room for one more
// generation. The allotment is an exclusive upper bound.
func (s *Subscription) CanGenerate() bool {
	return s.CreditsUsed < s.MonthlyCredits
}

// RemainingCredits returns the number of credits left, floored at zero.
func (s *Subscription) RemainingCredits() int {
	if r := s.MonthlyCredits - s.CreditsUsed; r > 0 {
		return r
	}
	return 0
}
