package repository

import (
	"time"

	"github.com/oakbijoux/oakstudio/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create creates a new subscription in the database
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByUserID retrieves the subscription owned by a user
func (r *subscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByStripeCustomerID retrieves a subscription by its payment-customer reference
func (r *subscriptionRepository) GetByStripeCustomerID(customerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Update persists subscription changes. Must not be used to move the
// credit ledger; see DebitCredit/RefundCredit.
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// DebitCredit consumes one credit in a single conditional UPDATE so two
// concurrent requests near the allotment boundary cannot both pass a
// check-then-act gap.
func (r *subscriptionRepository) DebitCredit(subscriptionID uint) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND credits_used < monthly_credits", subscriptionID).
		UpdateColumn("credits_used", gorm.Expr("credits_used + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// RefundCredit returns one credit, floored at zero.
func (r *subscriptionRepository) RefundCredit(subscriptionID uint) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND credits_used > 0", subscriptionID).
		UpdateColumn("credits_used", gorm.Expr("credits_used - 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ResetCredits zeroes the consumed counter for a new billing period and
// stamps the provider-supplied period bounds.
func (r *subscriptionRepository) ResetCredits(subscriptionID uint, periodStart, periodEnd *time.Time) error {
	updates := map[string]interface{}{
		"credits_used": 0,
	}
	if periodStart != nil {
		updates["current_period_start"] = periodStart
	}
	if periodEnd != nil {
		updates["current_period_end"] = periodEnd
	}
	return r.db.Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(updates).Error
}
