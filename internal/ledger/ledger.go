// Package ledger tracks per-user letter credits. All balance mutations go
// through single conditional UPDATE statements so concurrent deductions for
// the same user serialize on the row lock.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

// ErrNoAccount is returned when a user has no allowance account at all.
var ErrNoAccount = errors.New("no allowance account for user")

// Ledger performs atomic credit operations against the letter_allowances table.
type Ledger struct {
	db     *sql.DB
	logger logging.Logger
}

// New creates a Ledger backed by the given database.
func New(db *sql.DB, logger logging.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Allowance is the read-only view of a user's remaining credit.
type Allowance struct {
	HasAllowance bool
	// Remaining is nil for unlimited (privileged) accounts.
	Remaining   *int
	Unlimited   bool
	IsFreeTrial bool
}

// DeductResult reports the outcome of a check-and-deduct call.
type DeductResult struct {
	Success bool
	// Remaining is nil for unlimited accounts; otherwise the balance after
	// the deduction.
	Remaining   *int
	Unlimited   bool
	IsFreeTrial bool
	// NeedsSubscription tells the caller to redirect the user to purchase.
	// Exhausted credit is a business outcome, not an error.
	NeedsSubscription bool
	ErrorMessage      string
}

// CheckAllowance reads a user's remaining credit without side effects.
func (l *Ledger) CheckAllowance(ctx context.Context, userID string) (Allowance, error) {
	var account models.AllowanceAccount
	err := l.db.QueryRowContext(ctx, `
		SELECT monthly_allowance, credits_remaining, is_free_trial
		FROM letter_allowances
		WHERE user_id = $1
	`, userID).Scan(&account.MonthlyAllowance, &account.CreditsRemaining, &account.IsFreeTrial)

	if errors.Is(err, sql.ErrNoRows) {
		return Allowance{}, ErrNoAccount
	}
	if err != nil {
		return Allowance{}, fmt.Errorf("query allowance: %w", err)
	}

	if account.Unlimited() {
		return Allowance{HasAllowance: true, Unlimited: true, IsFreeTrial: account.IsFreeTrial}, nil
	}

	return Allowance{
		HasAllowance: *account.CreditsRemaining > 0,
		Remaining:    account.CreditsRemaining,
		IsFreeTrial:  account.IsFreeTrial,
	}, nil
}

// CheckAndDeductAllowance atomically spends one credit. Under concurrent
// calls for the same user with one credit left, exactly one caller succeeds;
// the losers get a NeedsSubscription business result. Unlimited accounts
// always succeed and are never decremented.
func (l *Ledger) CheckAndDeductAllowance(ctx context.Context, userID string) (DeductResult, error) {
	var remaining sql.NullInt64
	var isFreeTrial bool

	err := l.db.QueryRowContext(ctx, `
		UPDATE letter_allowances
		SET credits_remaining = CASE
		        WHEN credits_remaining IS NULL THEN NULL
		        ELSE credits_remaining - 1
		    END,
		    updated_at = now()
		WHERE user_id = $1
		  AND (credits_remaining IS NULL OR credits_remaining > 0)
		RETURNING credits_remaining, is_free_trial
	`, userID).Scan(&remaining, &isFreeTrial)

	if errors.Is(err, sql.ErrNoRows) {
		// Either the account is exhausted or it does not exist.
		allowance, checkErr := l.CheckAllowance(ctx, userID)
		if errors.Is(checkErr, ErrNoAccount) {
			return DeductResult{
				NeedsSubscription: true,
				ErrorMessage:      "No letter subscription found",
			}, nil
		}
		if checkErr != nil {
			return DeductResult{}, checkErr
		}
		return DeductResult{
			Remaining:         allowance.Remaining,
			IsFreeTrial:       allowance.IsFreeTrial,
			NeedsSubscription: true,
			ErrorMessage:      "Letter allowance exhausted for this period",
		}, nil
	}
	if err != nil {
		return DeductResult{}, fmt.Errorf("deduct allowance: %w", err)
	}

	result := DeductResult{Success: true, IsFreeTrial: isFreeTrial}
	if remaining.Valid {
		left := int(remaining.Int64)
		result.Remaining = &left
	} else {
		result.Unlimited = true
	}

	l.logger.WithFields(logging.Fields{
		"user_id":       userID,
		"unlimited":     result.Unlimited,
		"is_free_trial": isFreeTrial,
	}).Info("Letter credit deducted")

	return result, nil
}

// RefundAllowance returns credits to a user, clamped to the monthly
// allowance. Best-effort compensating action; it is not atomic with the
// deduction it reverses. Unlimited accounts are left untouched.
func (l *Ledger) RefundAllowance(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		amount = 1
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE letter_allowances
		SET credits_remaining = LEAST(credits_remaining + $2, monthly_allowance),
		    updated_at = now()
		WHERE user_id = $1 AND credits_remaining IS NOT NULL
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("refund allowance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("refund allowance: %w", err)
	}
	if rows == 0 {
		// Unlimited account or missing row; nothing to refund.
		l.logger.WithField("user_id", userID).Debug("Refund skipped, no capped account")
		return nil
	}

	l.logger.WithFields(logging.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Info("Letter credit refunded")

	return nil
}
