// Package review implements the human review workflow: the pending queue,
// claims, approval and rejection, resubmission, and the privileged bulk
// operations. All state changes go through conditional updates in the letter
// store, so two reviewers racing for the same letter resolve deterministically.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"letterworks/internal/audit"
	"letterworks/internal/letters"
	"letterworks/internal/notify"
	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

var (
	// ErrPermissionDenied is returned when the actor's role lacks the
	// capability for the attempted action.
	ErrPermissionDenied = errors.New("role does not permit this action")
	// ErrInvalidReason is returned when a rejection reason is empty or
	// outside the taxonomy allowed for the actor's role.
	ErrInvalidReason = errors.New("invalid rejection reason")
	// ErrEmptyContent is returned when an approval or resubmission carries
	// no content.
	ErrEmptyContent = errors.New("content must not be empty")
)

// Actor identifies who is performing a review action.
type Actor struct {
	ID   string
	Role Role
}

// Service coordinates review actions across the store, audit trail, and
// notifier.
type Service struct {
	store    *letters.Store
	trail    *audit.Trail
	notifier *notify.Notifier
	logger   logging.Logger
}

// NewService wires a review service.
func NewService(store *letters.Store, trail *audit.Trail, notifier *notify.Notifier, logger logging.Logger) *Service {
	return &Service{store: store, trail: trail, notifier: notifier, logger: logger}
}

// Pending returns the unclaimed review queue, oldest first.
func (s *Service) Pending(ctx context.Context, actor Actor) ([]models.Letter, error) {
	if !actor.Role.IsReviewer() {
		return nil, ErrPermissionDenied
	}
	return s.store.ListPending(ctx)
}

// Claim assigns a pending letter to the actor. Exactly one of any set of
// concurrent claims succeeds; losers get letters.ErrClaimConflict.
func (s *Service) Claim(ctx context.Context, letterID string, actor Actor) error {
	if !actor.Role.Can(CapClaim) {
		return ErrPermissionDenied
	}

	if err := s.store.Claim(ctx, letterID, actor.ID); err != nil {
		return err
	}

	s.record(ctx, letterID, actor, models.ActionReviewStarted,
		models.StatusPendingReview, models.StatusUnderReview, nil)
	return nil
}

// Approve finalizes a letter the actor has under review. The reviewed
// content becomes the letter of record.
func (s *Service) Approve(ctx context.Context, letterID string, actor Actor, finalContent, notes string) error {
	if !actor.Role.Can(CapApprove) {
		return ErrPermissionDenied
	}
	if strings.TrimSpace(finalContent) == "" {
		return ErrEmptyContent
	}

	if err := s.store.Approve(ctx, letterID, actor.ID, finalContent, notes); err != nil {
		return err
	}

	s.record(ctx, letterID, actor, models.ActionApproved,
		models.StatusUnderReview, models.StatusApproved, notesPtr(notes))
	s.publish(ctx, notify.EventLetterApproved, letterID, "")
	return nil
}

// Reject returns a letter to its owner with a reason. attorney_admin must
// use the taxonomy or "other: ..."; super_admin may free-type.
func (s *Service) Reject(ctx context.Context, letterID string, actor Actor, reason, notes string) error {
	if !actor.Role.Can(CapReject) {
		return ErrPermissionDenied
	}
	if !ValidReason(actor.Role, reason) {
		return ErrInvalidReason
	}

	if err := s.store.Reject(ctx, letterID, actor.ID, reason, notes); err != nil {
		return err
	}

	s.record(ctx, letterID, actor, models.ActionRejected,
		models.StatusUnderReview, models.StatusRejected, notesPtr(reason))
	s.publish(ctx, notify.EventLetterRejected, letterID, reason)
	return nil
}

// Submit moves an owner's draft into the review queue. The store rejects
// drafts with no content.
func (s *Service) Submit(ctx context.Context, letterID, userID string) error {
	if err := s.store.Submit(ctx, letterID, userID); err != nil {
		return err
	}

	s.record(ctx, letterID, Actor{ID: userID}, models.ActionSubmitted,
		models.StatusDraft, models.StatusPendingReview, nil)
	s.publish(ctx, notify.EventLetterSubmitted, letterID, "")
	return nil
}

// Resubmit puts a rejected letter back in the queue with revised content.
// The prior claim and rejection reason are cleared so the letter is reviewed
// fresh.
func (s *Service) Resubmit(ctx context.Context, letterID, userID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	if err := s.store.Resubmit(ctx, letterID, userID, content); err != nil {
		return err
	}

	s.record(ctx, letterID, Actor{ID: userID}, models.ActionResubmitted,
		models.StatusRejected, models.StatusPendingReview, nil)
	s.publish(ctx, notify.EventLetterSubmitted, letterID, "")
	return nil
}

// BulkResult reports the outcome of a bulk operation per letter.
type BulkResult struct {
	Approved []string
	Failed   map[string]string
}

// BulkApprove approves a batch in one call, adopting each letter's draft as
// final content. Per-letter failures do not abort the batch; each outcome is
// reported and audited individually.
func (s *Service) BulkApprove(ctx context.Context, letterIDs []string, actor Actor, notes string) (BulkResult, error) {
	if !actor.Role.Can(CapBulkOps) {
		return BulkResult{}, ErrPermissionDenied
	}

	result := BulkResult{Failed: make(map[string]string)}
	for _, id := range letterIDs {
		prior, err := s.store.ForceApprove(ctx, id, actor.ID, notes)
		if err != nil {
			result.Failed[id] = bulkFailureMessage(err)
			continue
		}
		result.Approved = append(result.Approved, id)
		s.record(ctx, id, actor, models.ActionApproved,
			prior, models.StatusApproved, notesPtr(notes))
		s.publish(ctx, notify.EventLetterApproved, id, "")
	}
	return result, nil
}

func bulkFailureMessage(err error) string {
	if errors.Is(err, letters.ErrInvalidTransition) {
		return "not awaiting review or has no draft content"
	}
	return err.Error()
}

// Reassign moves an in-progress review to a different reviewer.
func (s *Service) Reassign(ctx context.Context, letterID, newReviewerID string, actor Actor) error {
	if !actor.Role.Can(CapReassign) {
		return ErrPermissionDenied
	}

	if err := s.store.Reassign(ctx, letterID, newReviewerID); err != nil {
		return err
	}

	s.record(ctx, letterID, actor, models.ActionReviewStarted,
		models.StatusUnderReview, models.StatusUnderReview,
		notesPtr(fmt.Sprintf("reassigned to %s", newReviewerID)))
	return nil
}

// Complete marks an approved letter delivered. Called by the delivery
// pipeline over service auth, not by end users.
func (s *Service) Complete(ctx context.Context, letterID string) error {
	if err := s.store.Complete(ctx, letterID); err != nil {
		return err
	}

	s.record(ctx, letterID, Actor{}, models.ActionCompleted,
		models.StatusApproved, models.StatusCompleted, nil)
	s.publish(ctx, notify.EventLetterCompleted, letterID, "")
	return nil
}

// History returns a letter's audit trail. Owners see their own letters,
// reviewers see any.
func (s *Service) History(ctx context.Context, letterID string, actor Actor) ([]models.AuditEntry, error) {
	if !actor.Role.IsReviewer() {
		letter, err := s.store.Get(ctx, letterID)
		if err != nil {
			return nil, err
		}
		if letter.UserID != actor.ID {
			return nil, ErrPermissionDenied
		}
	}
	return s.trail.History(ctx, letterID)
}

func (s *Service) record(ctx context.Context, letterID string, actor Actor, action models.AuditAction, from, to models.LetterStatus, notes *string) {
	entry := models.AuditEntry{
		LetterID:  letterID,
		Action:    action,
		OldStatus: from,
		NewStatus: to,
		Notes:     notes,
	}
	if actor.ID != "" {
		id := actor.ID
		entry.ActorID = &id
	}
	if actor.Role != "" {
		entry.Metadata = models.JSONB{"actor_role": string(actor.Role)}
	}
	s.trail.Record(ctx, entry)
}

func (s *Service) publish(ctx context.Context, eventType, letterID, detail string) {
	letter, err := s.store.Get(ctx, letterID)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"letter_id": letterID,
			"error":     err.Error(),
		}).Warn("Skipping event publish, letter not readable")
		return
	}
	s.notifier.Publish(eventType, letter, detail)
}

func notesPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
