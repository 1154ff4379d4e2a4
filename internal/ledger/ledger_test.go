package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"letterworks/pkg/logging"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return New(db, logging.NewLogger()), mock, func() { db.Close() }
}

func TestCheckAndDeductSpendsLastCredit(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}).
			AddRow(0, false))

	result, err := l.CheckAndDeductAllowance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CheckAndDeductAllowance: %v", err)
	}
	if !result.Success {
		t.Fatal("expected deduction to succeed")
	}
	if result.Remaining == nil || *result.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %v", result.Remaining)
	}
	if result.Unlimited {
		t.Fatal("capped account reported as unlimited")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCheckAndDeductExhaustedIsBusinessOutcome(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	// Conditional update matches no row, then the follow-up read shows an
	// exhausted account.
	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}))
	mock.ExpectQuery("SELECT monthly_allowance, credits_remaining, is_free_trial").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"monthly_allowance", "credits_remaining", "is_free_trial"}).
			AddRow(4, 0, false))

	result, err := l.CheckAndDeductAllowance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CheckAndDeductAllowance: %v", err)
	}
	if result.Success {
		t.Fatal("expected deduction to fail")
	}
	if !result.NeedsSubscription {
		t.Fatal("expected NeedsSubscription flag")
	}
	if result.ErrorMessage == "" {
		t.Fatal("expected a structured error message")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCheckAndDeductUnlimitedAccountNeverDecrements(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}).
			AddRow(nil, false))

	result, err := l.CheckAndDeductAllowance(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("CheckAndDeductAllowance: %v", err)
	}
	if !result.Success || !result.Unlimited {
		t.Fatalf("expected unlimited success, got %+v", result)
	}
	if result.Remaining != nil {
		t.Fatal("unlimited account should not report a remaining count")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCheckAndDeductMissingAccount(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}))
	mock.ExpectQuery("SELECT monthly_allowance, credits_remaining, is_free_trial").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"monthly_allowance", "credits_remaining", "is_free_trial"}))

	result, err := l.CheckAndDeductAllowance(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("CheckAndDeductAllowance: %v", err)
	}
	if result.Success || !result.NeedsSubscription {
		t.Fatalf("expected subscription redirect, got %+v", result)
	}
}

func TestRefundClampsToMonthlyAllowance(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	// The clamp lives in the SQL (LEAST against monthly_allowance); the
	// ledger only issues the single conditional update.
	mock.ExpectExec("UPDATE letter_allowances").
		WithArgs("user-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := l.RefundAllowance(context.Background(), "user-1", 1); err != nil {
		t.Fatalf("RefundAllowance: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRefundSkipsUnlimitedAccount(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	mock.ExpectExec("UPDATE letter_allowances").
		WithArgs("admin-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := l.RefundAllowance(context.Background(), "admin-1", 1); err != nil {
		t.Fatalf("RefundAllowance: %v", err)
	}
}

func TestRefundDefaultsToOneCredit(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	mock.ExpectExec("UPDATE letter_allowances").
		WithArgs("user-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := l.RefundAllowance(context.Background(), "user-1", 0); err != nil {
		t.Fatalf("RefundAllowance: %v", err)
	}
}

func TestCheckAllowanceReadsWithoutSideEffects(t *testing.T) {
	l, mock, done := newTestLedger(t)
	defer done()

	mock.ExpectQuery("SELECT monthly_allowance, credits_remaining, is_free_trial").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"monthly_allowance", "credits_remaining", "is_free_trial"}).
			AddRow(4, 2, true))

	allowance, err := l.CheckAllowance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CheckAllowance: %v", err)
	}
	if !allowance.HasAllowance {
		t.Fatal("expected allowance available")
	}
	if allowance.Remaining == nil || *allowance.Remaining != 2 {
		t.Fatalf("expected 2 remaining, got %v", allowance.Remaining)
	}
	if !allowance.IsFreeTrial {
		t.Fatal("expected free trial flag")
	}
}
