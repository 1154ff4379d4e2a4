// Package orchestrator runs generation end to end: intake validation, the
// atomic credit deduction, the provider chain, and the compensating refund
// when generation fails. The provider adapter stays side-effect-free; all
// persistence bookkeeping lives here.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"letterworks/internal/audit"
	"letterworks/internal/ledger"
	"letterworks/internal/letters"
	"letterworks/internal/notify"
	"letterworks/internal/provider"
	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

// ErrGenerationFailed is the user-facing outcome when both providers are
// exhausted. By the time it is returned the credit has been refunded.
var ErrGenerationFailed = errors.New("letter generation failed, your credit has been refunded")

// ErrImproveFailed is returned when an improvement pass cannot reach any
// provider. No credit is involved; the existing draft is left untouched.
var ErrImproveFailed = errors.New("letter improvement failed, the existing draft is unchanged")

// ValidationError reports intake fields that failed validation. No side
// effects have occurred when it is returned.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid intake data: " + strings.Join(e.Fields, ", ")
}

// Validator checks intake data before any credit is spent. Schema details
// live outside the engine; the orchestrator only consumes the verdict.
type Validator interface {
	Validate(intake models.IntakeData) (bool, []string)
}

// Generator abstracts the provider chain.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (provider.Draft, error)
}

// GenerateResult is the outcome of a generation attempt that got past
// validation. Allowed=false is the out-of-credits business outcome, not an
// error.
type GenerateResult struct {
	Allowed           bool
	NeedsSubscription bool
	Message           string
	IsFreeTrial       bool
	Letter            models.Letter
}

// Orchestrator wires the generation flow together.
type Orchestrator struct {
	ledger    *ledger.Ledger
	store     *letters.Store
	generator Generator
	trail     *audit.Trail
	notifier  *notify.Notifier
	validator Validator
	logger    logging.Logger
}

// New creates an orchestrator.
func New(l *ledger.Ledger, store *letters.Store, gen Generator, trail *audit.Trail, notifier *notify.Notifier, validator Validator, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:    l,
		store:     store,
		generator: gen,
		trail:     trail,
		notifier:  notifier,
		validator: validator,
		logger:    logger,
	}
}

// Generate runs the full flow for one letter. The deduction happens before
// the letter row exists; a crash in between leaves an orphan the
// reconciliation sweep can find via status and created_at.
func (o *Orchestrator) Generate(ctx context.Context, userID, letterType string, intake models.IntakeData) (GenerateResult, error) {
	if ok, fields := o.validator.Validate(intake); !ok {
		return GenerateResult{}, &ValidationError{Fields: fields}
	}

	deduct, err := o.ledger.CheckAndDeductAllowance(ctx, userID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("allowance check: %w", err)
	}
	if !deduct.Success {
		return GenerateResult{
			Allowed:           false,
			NeedsSubscription: deduct.NeedsSubscription,
			Message:           deduct.ErrorMessage,
		}, nil
	}

	letter, err := o.store.Create(ctx, userID, letterType, intake, models.StatusGenerating)
	if err != nil {
		o.refund(ctx, userID, deduct)
		return GenerateResult{}, fmt.Errorf("create letter: %w", err)
	}
	o.record(ctx, letter.ID, userID, models.ActionCreated, "", models.StatusGenerating,
		models.JSONB{"credit_spent": !deduct.Unlimited, "is_free_trial": deduct.IsFreeTrial})

	draft, err := o.generator.Generate(ctx, provider.Request{
		LetterID:   letter.ID,
		UserID:     userID,
		LetterType: letterType,
		IntakeData: intake,
	})
	if err != nil {
		return GenerateResult{}, o.failGeneration(ctx, letter, userID, deduct, err)
	}

	if err := o.store.SetDraftContent(ctx, letter.ID, draft.Content); err != nil {
		return GenerateResult{}, o.failGeneration(ctx, letter, userID, deduct, err)
	}
	o.record(ctx, letter.ID, userID, models.ActionSubmitted,
		models.StatusGenerating, models.StatusPendingReview,
		models.JSONB{"method": string(draft.Method), "research_applied": draft.ResearchApplied})

	letter, err = o.store.Get(ctx, letter.ID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("reload letter: %w", err)
	}
	o.notifier.Publish(notify.EventLetterSubmitted, letter, "")

	return GenerateResult{
		Allowed:     true,
		IsFreeTrial: deduct.IsFreeTrial,
		Letter:      letter,
	}, nil
}

// failGeneration drives the letter to a terminal failed state, refunds the
// credit where one was spent, and alerts operators. Bookkeeping runs on a
// detached context so a caller-side timeout cannot strand the letter in
// generating.
func (o *Orchestrator) failGeneration(ctx context.Context, letter models.Letter, userID string, deduct ledger.DeductResult, cause error) error {
	bookCtx := context.WithoutCancel(ctx)

	o.logger.WithFields(logging.Fields{
		"letter_id": letter.ID,
		"user_id":   userID,
		"error":     cause.Error(),
	}).Error("Letter generation failed")

	if err := o.store.SetGenerationFailed(bookCtx, letter.ID, cause.Error()); err != nil {
		o.logger.WithFields(logging.Fields{
			"letter_id": letter.ID,
			"error":     err.Error(),
		}).Error("Failed to mark letter failed")
	}

	refunded := !deduct.Unlimited && !deduct.IsFreeTrial
	o.refund(bookCtx, userID, deduct)

	o.record(bookCtx, letter.ID, userID, models.ActionGenerationFailed,
		models.StatusGenerating, models.StatusFailed,
		models.JSONB{"error": cause.Error(), "credit_refunded": refunded})

	o.notifier.Publish(notify.EventGenerationFailed, letter, cause.Error())
	o.notifier.AlertOperators(bookCtx,
		"Letter generation failed",
		fmt.Sprintf("Letter %s for user %s failed to generate.\n\n%s\n\nThe letter is marked failed; the owner can retry from their dashboard.",
			letter.ID, userID, cause.Error()))

	return ErrGenerationFailed
}

// refund compensates a spent credit. Unlimited accounts never spent one and
// free-trial credits are not restored once consumed.
func (o *Orchestrator) refund(ctx context.Context, userID string, deduct ledger.DeductResult) {
	if deduct.Unlimited || deduct.IsFreeTrial {
		return
	}
	if err := o.ledger.RefundAllowance(ctx, userID, 1); err != nil {
		o.logger.WithFields(logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to refund allowance")
	}
}

// Improve regenerates an existing draft with reviewer or owner feedback. No
// credit is consumed; the letter must belong to the caller and still be
// editable.
func (o *Orchestrator) Improve(ctx context.Context, letterID, userID, feedback string) (models.Letter, error) {
	letter, err := o.store.Get(ctx, letterID)
	if err != nil {
		return models.Letter{}, err
	}
	if letter.UserID != userID {
		return models.Letter{}, letters.ErrNotFound
	}

	draft, err := o.generator.Generate(ctx, provider.Request{
		LetterID:   letter.ID,
		UserID:     userID,
		LetterType: letter.LetterType,
		IntakeData: letter.IntakeData,
		Feedback:   feedback,
	})
	if err != nil {
		return models.Letter{}, ErrImproveFailed
	}

	if err := o.store.UpdateDraft(ctx, letter.ID, draft.Content); err != nil {
		return models.Letter{}, err
	}
	o.record(ctx, letter.ID, userID, models.ActionImproved, letter.Status, letter.Status,
		models.JSONB{"method": string(draft.Method)})

	return o.store.Get(ctx, letter.ID)
}

func (o *Orchestrator) record(ctx context.Context, letterID, actorID string, action models.AuditAction, from, to models.LetterStatus, metadata models.JSONB) {
	entry := models.AuditEntry{
		LetterID:  letterID,
		Action:    action,
		OldStatus: from,
		NewStatus: to,
		Metadata:  metadata,
	}
	if actorID != "" {
		id := actorID
		entry.ActorID = &id
	}
	o.trail.Record(ctx, entry)
}
