package repository

import (
	"time"

	"github.com/oakbijoux/oakstudio/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByExternalID(externalID string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	TouchAPIKeyUsage(id uint, at time.Time) error
}

// SubscriptionRepository defines the interface for subscription and credit
// ledger operations. The ledger is only moved through the conditional
// Debit/Refund updates; both are single atomic statements.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByUserID(userID uint) (*models.Subscription, error)
	GetByStripeCustomerID(customerID string) (*models.Subscription, error)
	Update(sub *models.Subscription) error

	// DebitCredit consumes one credit iff credits_used < monthly_credits.
	// Returns false when the allotment is exhausted.
	DebitCredit(subscriptionID uint) (bool, error)
	// RefundCredit returns one credit iff credits_used > 0 (floor at zero).
	// Returns false when there was nothing to refund.
	RefundCredit(subscriptionID uint) (bool, error)
	// ResetCredits zeroes the consumed counter and refreshes period bounds.
	ResetCredits(subscriptionID uint, periodStart, periodEnd *time.Time) error
}

// JewelryRepository defines the interface for jewelry upload operations
type JewelryRepository interface {
	Create(jewelry *models.JewelryUpload) error
	GetByID(id uint) (*models.JewelryUpload, error)
	GetByUUID(uuid string) (*models.JewelryUpload, error)
	GetByUUIDAndUserID(uuid string, userID uint) (*models.JewelryUpload, error)
	ListByUserID(userID uint, offset, limit int) ([]models.JewelryUpload, error)
	CountByUserID(userID uint) (int64, error)
	DeleteByID(id uint) error
}

// GenerationRepository defines the interface for generation lifecycle operations
type GenerationRepository interface {
	Create(generation *models.Generation) error
	GetByUUID(uuid string) (*models.Generation, error)
	GetByUUIDWithSubscription(uuid string) (*models.Generation, *models.Subscription, error)
	ListByUserID(userID uint, offset, limit int) ([]models.Generation, error)
	CountByUserID(userID uint) (int64, error)
	MarkProcessing(id uint) error
	// MarkCompleted and MarkFailed only transition non-terminal rows and
	// report whether the transition happened. A false return means another
	// writer finalized the row first; callers must not refund on it.
	MarkCompleted(id uint, resultImageURL string, processingTimeMs *int64) (bool, error)
	MarkFailed(id uint, errorMessage string, processingTimeMs *int64) (bool, error)
	// ListStaleProcessing returns generations sitting in processing since
	// before the cutoff; used by the background reconciler.
	ListStaleProcessing(cutoff time.Time, limit int) ([]models.Generation, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	Jewelry      JewelryRepository
	Generation   GenerationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Jewelry:      NewJewelryRepository(db),
		Generation:   NewGenerationRepository(db),
	}
}
