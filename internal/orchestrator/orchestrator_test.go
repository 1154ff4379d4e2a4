package orchestrator

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"letterworks/internal/audit"
	"letterworks/internal/ledger"
	"letterworks/internal/letters"
	"letterworks/internal/notify"
	"letterworks/internal/provider"
	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

type stubGenerator struct {
	draft provider.Draft
	err   error
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, req provider.Request) (provider.Draft, error) {
	g.calls++
	return g.draft, g.err
}

type passValidator struct{}

func (passValidator) Validate(models.IntakeData) (bool, []string) { return true, nil }

type failValidator struct{ fields []string }

func (v failValidator) Validate(models.IntakeData) (bool, []string) { return false, v.fields }

func newTestOrchestrator(t *testing.T, gen Generator, v Validator) (*Orchestrator, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	logger := logging.NewLogger()
	o := New(
		ledger.New(db, logger),
		letters.NewStore(db, logger),
		gen,
		audit.NewTrail(db, logger),
		notify.NewDisabledNotifier(logger),
		v,
		logger,
	)
	return o, mock, func() { db.Close() }
}

// metadataWith matches a JSONB argument whose decoded form carries the given
// key with the given value.
type metadataWith struct {
	key  string
	want interface{}
}

func (m metadataWith) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return false
	}
	return fields[m.key] == m.want
}

var letterCols = []string{
	"id", "user_id", "letter_type", "intake_data", "status",
	"ai_draft_content", "final_content", "assigned_reviewer",
	"rejection_reason", "review_notes", "generation_error",
	"created_at", "updated_at", "submitted_at", "review_started_at",
	"approved_at", "rejected_at", "completed_at",
}

func letterRow(id, userID string, status models.LetterStatus, draft interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(letterCols).AddRow(
		id, userID, "demand_letter", []byte(`{"senderName":"A"}`), string(status),
		draft, nil, nil,
		nil, nil, nil,
		now, now, nil, nil,
		nil, nil, nil,
	)
}

func TestGenerateHappyPath(t *testing.T) {
	gen := &stubGenerator{draft: provider.Draft{Content: "Dear Sir or Madam", Method: provider.ProviderPrimary}}
	o, mock, done := newTestOrchestrator(t, gen, passValidator{})
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}).AddRow(2, false))
	mock.ExpectQuery("INSERT INTO letters").
		WillReturnRows(letterRow("L1", "user-1", models.StatusGenerating, nil))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE letters").
		WithArgs("L1", "Dear Sir or Madam").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(letterRow("L1", "user-1", models.StatusPendingReview, "Dear Sir or Madam"))

	result, err := o.Generate(context.Background(), "user-1", "demand_letter", models.IntakeData{SenderName: "A"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected allowed result")
	}
	if result.Letter.Status != models.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", result.Letter.Status)
	}
	if gen.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", gen.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateValidationFailureHasNoSideEffects(t *testing.T) {
	gen := &stubGenerator{}
	o, mock, done := newTestOrchestrator(t, gen, failValidator{fields: []string{"recipientName"}})
	defer done()

	_, err := o.Generate(context.Background(), "user-1", "demand_letter", models.IntakeData{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("provider must not be called on validation failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("database must not be touched: %v", err)
	}
}

func TestGenerateExhaustedAllowanceIsBusinessOutcome(t *testing.T) {
	gen := &stubGenerator{}
	o, mock, done := newTestOrchestrator(t, gen, passValidator{})
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}))
	mock.ExpectQuery("SELECT monthly_allowance").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"monthly_allowance", "credits_remaining", "is_free_trial"}).
			AddRow(4, 0, false))

	result, err := o.Generate(context.Background(), "user-1", "demand_letter", models.IntakeData{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected disallowed result")
	}
	if !result.NeedsSubscription {
		t.Fatal("expected needs-subscription flag")
	}
	if gen.calls != 0 {
		t.Fatal("provider must not be called without a credit")
	}
}

func TestGenerateFailureRefundsAndFails(t *testing.T) {
	gen := &stubGenerator{err: provider.ErrProvidersUnavailable}
	o, mock, done := newTestOrchestrator(t, gen, passValidator{})
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}).AddRow(0, false))
	mock.ExpectQuery("INSERT INTO letters").
		WillReturnRows(letterRow("L1", "user-1", models.StatusGenerating, nil))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Failure bookkeeping: mark failed, refund, audit.
	mock.ExpectExec("UPDATE letters").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE letter_allowances").
		WithArgs("user-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WithArgs(sqlmock.AnyArg(), "L1", "generation_failed", "generating", "failed",
			"user-1", nil, metadataWith{key: "credit_refunded", want: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := o.Generate(context.Background(), "user-1", "demand_letter", models.IntakeData{})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateFailureSkipsRefundForFreeTrial(t *testing.T) {
	gen := &stubGenerator{err: provider.ErrProvidersUnavailable}
	o, mock, done := newTestOrchestrator(t, gen, passValidator{})
	defer done()

	mock.ExpectQuery("UPDATE letter_allowances").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "is_free_trial"}).AddRow(0, true))
	mock.ExpectQuery("INSERT INTO letters").
		WillReturnRows(letterRow("L1", "user-1", models.StatusGenerating, nil))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE letters").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No refund exec expected for a free-trial credit, and the audit entry
	// must say so.
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WithArgs(sqlmock.AnyArg(), "L1", "generation_failed", "generating", "failed",
			"user-1", nil, metadataWith{key: "credit_refunded", want: false}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := o.Generate(context.Background(), "user-1", "demand_letter", models.IntakeData{})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestImproveRejectsForeignLetter(t *testing.T) {
	gen := &stubGenerator{}
	o, mock, done := newTestOrchestrator(t, gen, passValidator{})
	defer done()

	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(letterRow("L1", "someone-else", models.StatusDraft, "draft"))

	_, err := o.Improve(context.Background(), "L1", "user-1", "make it firmer")
	if !errors.Is(err, letters.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("provider must not be called for a foreign letter")
	}
}

func TestImproveReplacesDraft(t *testing.T) {
	gen := &stubGenerator{draft: provider.Draft{Content: "Firmer letter", Method: provider.ProviderFallback}}
	o, mock, done := newTestOrchestrator(t, gen, passValidator{})
	defer done()

	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(letterRow("L1", "user-1", models.StatusDraft, "old draft"))
	mock.ExpectExec("UPDATE letters").
		WithArgs("L1", "Firmer letter").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(letterRow("L1", "user-1", models.StatusDraft, "Firmer letter"))

	letter, err := o.Improve(context.Background(), "L1", "user-1", "make it firmer")
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if letter.AIDraftContent == nil || *letter.AIDraftContent != "Firmer letter" {
		t.Fatalf("expected replaced draft, got %v", letter.AIDraftContent)
	}
}
