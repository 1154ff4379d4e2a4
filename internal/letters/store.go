// Package letters is the durable record store for letter rows. Every status
// change is a conditional UPDATE keyed on the expected current state, so
// concurrent writers resolve through affected-row counts instead of
// read-then-write races.
package letters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

var (
	// ErrNotFound is returned when no letter exists with the given id.
	ErrNotFound = errors.New("letter not found")
	// ErrClaimConflict is returned when a claim loses the race for a
	// pending letter, or when a letter is not in a claimable state.
	ErrClaimConflict = errors.New("letter already claimed or not claimable")
	// ErrInvalidTransition is returned when a conditional status update
	// matched no row because the letter is not in the expected state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotDeletable is returned when deletion is attempted outside
	// draft/rejected/failed.
	ErrNotDeletable = errors.New("letter is not in a deletable status")
)

const letterColumns = `id, user_id, letter_type, intake_data, status,
	ai_draft_content, final_content, assigned_reviewer,
	rejection_reason, review_notes, generation_error,
	created_at, updated_at, submitted_at, review_started_at,
	approved_at, rejected_at, completed_at`

// Store persists letters.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore creates a letter store.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func scanLetter(row interface{ Scan(...interface{}) error }) (models.Letter, error) {
	var l models.Letter
	err := row.Scan(
		&l.ID, &l.UserID, &l.LetterType, &l.IntakeData, &l.Status,
		&l.AIDraftContent, &l.FinalContent, &l.AssignedReviewer,
		&l.RejectionReason, &l.ReviewNotes, &l.GenerationError,
		&l.CreatedAt, &l.UpdatedAt, &l.SubmittedAt, &l.ReviewStartedAt,
		&l.ApprovedAt, &l.RejectedAt, &l.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Letter{}, ErrNotFound
	}
	if err != nil {
		return models.Letter{}, fmt.Errorf("scan letter: %w", err)
	}
	return l, nil
}

// Create inserts a new letter row.
func (s *Store) Create(ctx context.Context, userID, letterType string, intake models.IntakeData, status models.LetterStatus) (models.Letter, error) {
	id := uuid.New().String()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO letters (id, user_id, letter_type, intake_data, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+letterColumns+`
	`, id, userID, letterType, intake, status)

	letter, err := scanLetter(row)
	if err != nil {
		return models.Letter{}, fmt.Errorf("create letter: %w", err)
	}
	return letter, nil
}

// Get fetches one letter by id.
func (s *Store) Get(ctx context.Context, letterID string) (models.Letter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+letterColumns+` FROM letters WHERE id = $1
	`, letterID)
	return scanLetter(row)
}

// ListByUser returns a user's letters, newest first, optionally filtered by status.
func (s *Store) ListByUser(ctx context.Context, userID string, status models.LetterStatus) ([]models.Letter, error) {
	query := `SELECT ` + letterColumns + ` FROM letters WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	return s.queryLetters(ctx, query, args...)
}

// ListPending returns unclaimed letters waiting for review, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]models.Letter, error) {
	return s.queryLetters(ctx, `
		SELECT `+letterColumns+` FROM letters
		WHERE status = 'pending_review' AND assigned_reviewer IS NULL
		ORDER BY created_at ASC
	`)
}

// ListStuckGenerating returns letters stuck in generating since before the
// cutoff. Used by the external reconciliation sweep for rows orphaned by a
// crash between letter creation and provider bookkeeping.
func (s *Store) ListStuckGenerating(ctx context.Context, olderThan time.Time) ([]models.Letter, error) {
	return s.queryLetters(ctx, `
		SELECT `+letterColumns+` FROM letters
		WHERE status = 'generating' AND created_at < $1
		ORDER BY created_at ASC
	`, olderThan)
}

func (s *Store) queryLetters(ctx context.Context, query string, args ...interface{}) ([]models.Letter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query letters: %w", err)
	}
	defer rows.Close()

	var letters []models.Letter
	for rows.Next() {
		letter, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// SetDraftContent stores generated content on a letter and moves it from
// generating to pending_review.
func (s *Store) SetDraftContent(ctx context.Context, letterID, content string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET ai_draft_content = $2, status = 'pending_review',
		    submitted_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'generating'
	`, letterID, content)
}

// SetGenerationFailed moves a generating letter to failed and records the
// internal failure detail for operator diagnosis.
func (s *Store) SetGenerationFailed(ctx context.Context, letterID, generationError string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'failed', generation_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'generating'
	`, letterID, generationError)
}

// UpdateDraft replaces a draft's content and intake data in place.
func (s *Store) UpdateDraft(ctx context.Context, letterID, content string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET ai_draft_content = $2, updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'pending_review')
	`, letterID, content)
}

// Submit moves an owner's draft to pending_review.
func (s *Store) Submit(ctx context.Context, letterID, userID string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'pending_review', submitted_at = now(), updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = 'draft'
		  AND ai_draft_content IS NOT NULL AND length(ai_draft_content) > 0
	`, letterID, userID)
}

// Claim assigns a pending letter to a reviewer. The WHERE clause is the
// concurrency control: only an unassigned pending_review row matches, so of
// two racing claims exactly one sees an affected row. On zero rows a
// follow-up read separates a letter that does not exist (ErrNotFound) from
// one that was already claimed or left the queue (ErrClaimConflict).
func (s *Store) Claim(ctx context.Context, letterID, reviewerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE letters
		SET status = 'under_review', assigned_reviewer = $2,
		    review_started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending_review' AND assigned_reviewer IS NULL
	`, letterID, reviewerID)
	if err != nil {
		return fmt.Errorf("claim letter: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim letter: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, letterID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrClaimConflict
	}
	return nil
}

// Reassign overrides an existing claim (super_admin only, enforced upstream).
func (s *Store) Reassign(ctx context.Context, letterID, reviewerID string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET assigned_reviewer = $2, updated_at = now()
		WHERE id = $1 AND status = 'under_review'
	`, letterID, reviewerID)
}

// Approve records the reviewer-approved final content. Only the assigned
// reviewer's under_review letter matches.
func (s *Store) Approve(ctx context.Context, letterID, reviewerID, finalContent, notes string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'approved', final_content = $3, review_notes = NULLIF($4, ''),
		    approved_at = now(), updated_at = now()
		WHERE id = $1 AND assigned_reviewer = $2 AND status = 'under_review'
	`, letterID, reviewerID, finalContent, notes)
}

// ForceApprove approves a letter regardless of claim state, adopting the
// AI draft as final content when no final content was set. Reserved for
// bulk operations by super_admin; capability checks happen upstream. The
// status the letter held before approval is returned for bookkeeping.
func (s *Store) ForceApprove(ctx context.Context, letterID, reviewerID, notes string) (models.LetterStatus, error) {
	var prior models.LetterStatus
	err := s.db.QueryRowContext(ctx, `
		UPDATE letters l
		SET status = 'approved',
		    final_content = COALESCE(l.final_content, l.ai_draft_content),
		    assigned_reviewer = COALESCE(l.assigned_reviewer, $2),
		    review_notes = NULLIF($3, ''),
		    approved_at = now(), updated_at = now()
		FROM (SELECT id, status AS prior_status FROM letters WHERE id = $1 FOR UPDATE) prev
		WHERE l.id = prev.id AND l.status IN ('pending_review', 'under_review')
		  AND l.ai_draft_content IS NOT NULL
		RETURNING prev.prior_status
	`, letterID, reviewerID, notes).Scan(&prior)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidTransition
	}
	if err != nil {
		return "", fmt.Errorf("force approve letter: %w", err)
	}
	return prior, nil
}

// Reject moves an under_review letter back to the owner with a reason.
func (s *Store) Reject(ctx context.Context, letterID, reviewerID, reason, notes string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'rejected', rejection_reason = $3, review_notes = NULLIF($4, ''),
		    rejected_at = now(), updated_at = now()
		WHERE id = $1 AND assigned_reviewer = $2 AND status = 'under_review'
	`, letterID, reviewerID, reason, notes)
}

// Resubmit returns a rejected letter to the review queue with revised
// content. The prior claim and rejection reason are cleared so any reviewer
// can pick it up fresh.
func (s *Store) Resubmit(ctx context.Context, letterID, userID, content string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'pending_review', ai_draft_content = $3,
		    assigned_reviewer = NULL, rejection_reason = NULL,
		    submitted_at = now(), updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = 'rejected'
	`, letterID, userID, content)
}

// Complete marks an approved letter as delivered downstream.
func (s *Store) Complete(ctx context.Context, letterID string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'approved'
	`, letterID)
}

// RetryFailed returns a failed letter to draft so the owner can try again.
func (s *Store) RetryFailed(ctx context.Context, letterID, userID string) error {
	return s.conditionalUpdate(ctx, `
		UPDATE letters
		SET status = 'draft', generation_error = NULL, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = 'failed'
	`, letterID, userID)
}

// Delete removes a letter. Only draft, rejected, and failed letters may be
// deleted; anything in or past review is kept.
func (s *Store) Delete(ctx context.Context, letterID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM letters
		WHERE id = $1 AND user_id = $2 AND status IN ('draft', 'rejected', 'failed')
	`, letterID, userID)
	if err != nil {
		return fmt.Errorf("delete letter: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete letter: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, letterID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrNotDeletable
	}
	return nil
}

func (s *Store) conditionalUpdate(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update letter: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update letter: %w", err)
	}
	if rows == 0 {
		return ErrInvalidTransition
	}
	return nil
}
