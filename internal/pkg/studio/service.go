package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oakbijoux/oakstudio/app/models"
	"github.com/oakbijoux/oakstudio/app/repository"
	"github.com/oakbijoux/oakstudio/internal/pkg/env"
	"github.com/oakbijoux/oakstudio/internal/pkg/tiers"
)

// EstimatedSeconds is the fixed completion estimate returned to clients.
// It is a product constant, not a measurement.
const EstimatedSeconds = 45

const defaultCallbackError = "Unknown error"

// GenerateInput carries one generation request.
type GenerateInput struct {
	JewelryUUID string
	PromptModel string
	PromptDecor string
	JewelryType string
}

// GenerateResult is returned after a successful dispatch.
type GenerateResult struct {
	GenerationUUID string
	Status         string
	EstimatedTime  int
}

// CallbackInput is the parsed workflow-engine notification.
type CallbackInput struct {
	GenerationUUID   string
	Status           string
	ResultImageURL   string
	ErrorMessage     string
	ProcessingTimeMs *int64
}

// Service coordinates the generation lifecycle: credit accounting, the
// dispatch to the external workflow engine, and the asynchronous callback
// that finalizes a generation.
type Service struct {
	subs        repository.SubscriptionRepository
	jewelry     repository.JewelryRepository
	generations repository.GenerationRepository
	dispatcher  Dispatcher
	callbackURL string
}

// NewService creates a studio service from injected repositories.
func NewService(
	subs repository.SubscriptionRepository,
	jewelry repository.JewelryRepository,
	generations repository.GenerationRepository,
	dispatcher Dispatcher,
) *Service {
	return &Service{
		subs:        subs,
		jewelry:     jewelry,
		generations: generations,
		dispatcher:  dispatcher,
		callbackURL: env.AppURL() + "/webhooks/oak-callback",
	}
}

// NewServiceFromRepos creates a studio service from the global repository
// factory and the env-configured workflow client.
func NewServiceFromRepos(repos *repository.Repositories) *Service {
	return NewService(repos.Subscription, repos.Jewelry, repos.Generation, NewWorkflowClientFromEnv())
}

// RequestGeneration runs the precondition chain, debits one credit, records
// the generation and dispatches it to the workflow engine. The debit happens
// as a single conditional update before the generation row exists, so a
// concurrent request at the allotment boundary loses cleanly instead of
// overshooting.
func (s *Service) RequestGeneration(ctx context.Context, userID uint, in GenerateInput) (*GenerateResult, error) {
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subscription lookup failed: %w", err)
	}

	if !sub.CanGenerate() {
		return nil, ErrCreditsExhausted
	}

	jewelry, err := s.jewelry.GetByUUIDAndUserID(in.JewelryUUID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJewelryNotFound
		}
		return nil, fmt.Errorf("jewelry lookup failed: %w", err)
	}

	if strings.TrimSpace(in.JewelryType) == "" {
		in.JewelryType = jewelry.JewelryType
	}

	// The conditional update is the authoritative credit check; the
	// CanGenerate read above only short-circuits the common case.
	debited, err := s.subs.DebitCredit(sub.ID)
	if err != nil {
		return nil, fmt.Errorf("credit debit failed: %w", err)
	}
	if !debited {
		return nil, ErrCreditsExhausted
	}

	tierCfg := tiers.Resolve(tiers.Tier(sub.Tier))
	metadata, _ := json.Marshal(map[string]string{"jewelryType": in.JewelryType})
	meta := models.JSON(metadata)

	generation := &models.Generation{
		UUID:         uuid.New().String(),
		UserID:       userID,
		JewelryID:    jewelry.ID,
		PromptModel:  in.PromptModel,
		PromptDecor:  in.PromptDecor,
		Status:       models.GenerationStatusPending,
		HasWatermark: tierCfg.HasWatermark,
		Resolution:   tierCfg.Resolution,
		Metadata:     &meta,
	}
	if err := s.generations.Create(generation); err != nil {
		s.refund(sub.ID, "generation insert failed")
		return nil, fmt.Errorf("failed to record generation: %w", err)
	}

	err = s.dispatcher.Dispatch(ctx, DispatchPayload{
		GenerationID: generation.UUID,
		JewelryURL:   jewelry.PublicURL,
		JewelryType:  in.JewelryType,
		PromptModel:  in.PromptModel,
		PromptDecor:  in.PromptDecor,
		CallbackURL:  s.callbackURL,
		HasWatermark: tierCfg.HasWatermark,
		Resolution:   tierCfg.Resolution,
		StartTime:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Errorf("[Studio] Dispatch failed for generation %s: %v", generation.UUID, err)
		if _, markErr := s.generations.MarkFailed(generation.ID, err.Error(), nil); markErr != nil {
			log.Errorf("[Studio] Failed to mark generation %s failed: %v", generation.UUID, markErr)
		}
		s.refund(sub.ID, "dispatch failure")
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	if err := s.generations.MarkProcessing(generation.ID); err != nil {
		// The workflow is already running; the callback will still finalize
		// the row, so log instead of failing the request.
		log.Errorf("[Studio] Failed to mark generation %s processing: %v", generation.UUID, err)
	}

	return &GenerateResult{
		GenerationUUID: generation.UUID,
		Status:         models.GenerationStatusProcessing,
		EstimatedTime:  EstimatedSeconds,
	}, nil
}

// HandleCallback finalizes a generation from a workflow-engine notification.
// Callbacks for already-terminal generations are rejected so a retried
// failure cannot refund the same credit twice. The terminal transition is a
// conditional write; losing it means another delivery won the race, and the
// refund only runs when this delivery made the transition.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) error {
	_ = ctx
	if strings.TrimSpace(in.GenerationUUID) == "" {
		return ErrInvalidCallback
	}
	switch in.Status {
	case models.GenerationStatusCompleted, models.GenerationStatusFailed:
	default:
		return ErrInvalidCallback
	}

	generation, sub, err := s.generations.GetByUUIDWithSubscription(in.GenerationUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGenerationNotFound
		}
		return fmt.Errorf("generation lookup failed: %w", err)
	}
	if generation.IsTerminal() {
		return ErrDuplicateCallback
	}

	if in.Status == models.GenerationStatusCompleted {
		if strings.TrimSpace(in.ResultImageURL) == "" {
			return ErrInvalidCallback
		}
		marked, err := s.generations.MarkCompleted(generation.ID, in.ResultImageURL, in.ProcessingTimeMs)
		if err != nil {
			return fmt.Errorf("failed to finalize generation: %w", err)
		}
		if !marked {
			return ErrDuplicateCallback
		}
		log.Infof("[Studio] Generation %s completed", generation.UUID)
		return nil
	}

	msg := strings.TrimSpace(in.ErrorMessage)
	if msg == "" {
		msg = defaultCallbackError
	}
	marked, err := s.generations.MarkFailed(generation.ID, msg, in.ProcessingTimeMs)
	if err != nil {
		return fmt.Errorf("failed to finalize generation: %w", err)
	}
	if !marked {
		return ErrDuplicateCallback
	}
	if sub != nil {
		s.refund(sub.ID, "generation failure")
	} else {
		log.Warnf("[Studio] Generation %s failed but user %d has no subscription, skipping refund", generation.UUID, generation.UserID)
	}
	log.Infof("[Studio] Generation %s failed: %s", generation.UUID, msg)
	return nil
}

// ReconcileStale fails generations stuck in processing past the timeout and
// refunds their credits. Returns the number of generations swept.
func (s *Service) ReconcileStale(ctx context.Context, timeout time.Duration, limit int) (int, error) {
	_ = ctx
	cutoff := time.Now().Add(-timeout)
	stale, err := s.generations.ListStaleProcessing(cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("stale generation query failed: %w", err)
	}

	swept := 0
	for i := range stale {
		g := &stale[i]
		msg := fmt.Sprintf("No callback received within %s", timeout)
		marked, err := s.generations.MarkFailed(g.ID, msg, nil)
		if err != nil {
			log.Errorf("[Studio] Failed to reconcile generation %s: %v", g.UUID, err)
			continue
		}
		if !marked {
			// A callback finalized the row between the query and the
			// update; leave its outcome alone.
			continue
		}
		if sub, err := s.subs.GetByUserID(g.UserID); err == nil {
			s.refund(sub.ID, "stale generation reconciliation")
		}
		swept++
	}
	return swept, nil
}

func (s *Service) refund(subscriptionID uint, reason string) {
	refunded, err := s.subs.RefundCredit(subscriptionID)
	if err != nil {
		log.Errorf("[Studio] Credit refund after %s failed for subscription %d: %v", reason, subscriptionID, err)
		return
	}
	if !refunded {
		log.Warnf("[Studio] Credit refund after %s skipped for subscription %d: ledger already at zero", reason, subscriptionID)
	}
}
