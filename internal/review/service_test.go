package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"letterworks/internal/audit"
	"letterworks/internal/letters"
	"letterworks/internal/notify"
	"letterworks/pkg/logging"
)

var letterCols = []string{
	"id", "user_id", "letter_type", "intake_data", "status",
	"ai_draft_content", "final_content", "assigned_reviewer",
	"rejection_reason", "review_notes", "generation_error",
	"created_at", "updated_at", "submitted_at", "review_started_at",
	"approved_at", "rejected_at", "completed_at",
}

func claimedLetterRow(id, reviewerID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(letterCols).AddRow(
		id, "user-1", "demand_letter", []byte(`{}`), "under_review",
		"draft", nil, reviewerID,
		nil, nil, nil,
		now, now, now, now,
		nil, nil, nil,
	)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	logger := logging.NewLogger()
	svc := NewService(
		letters.NewStore(db, logger),
		audit.NewTrail(db, logger),
		notify.NewDisabledNotifier(logger),
		logger,
	)
	return svc, mock, func() { db.Close() }
}

func TestCapabilityMatrix(t *testing.T) {
	cases := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleSubscriber, CapClaim, false},
		{RoleSubscriber, CapApprove, false},
		{RoleEmployee, CapClaim, false},
		{RoleEmployee, CapReject, false},
		{RoleAttorneyAdmin, CapClaim, true},
		{RoleAttorneyAdmin, CapApprove, true},
		{RoleAttorneyAdmin, CapReject, true},
		{RoleAttorneyAdmin, CapBulkOps, false},
		{RoleAttorneyAdmin, CapReassign, false},
		{RoleSuperAdmin, CapClaim, true},
		{RoleSuperAdmin, CapBulkOps, true},
		{RoleSuperAdmin, CapReassign, true},
		{Role(""), CapClaim, false},
		{Role("president"), CapApprove, false},
	}
	for _, tc := range cases {
		if got := tc.role.Can(tc.cap); got != tc.want {
			t.Errorf("%s.Can(%s) = %v, want %v", tc.role, tc.cap, got, tc.want)
		}
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	if got := ParseRole("super_admin"); got != RoleSuperAdmin {
		t.Fatalf("ParseRole(super_admin) = %q", got)
	}
	if got := ParseRole("root"); got != "" {
		t.Fatalf("ParseRole(root) = %q, want empty", got)
	}
}

func TestRejectionReasonTaxonomy(t *testing.T) {
	cases := []struct {
		role   Role
		reason string
		want   bool
	}{
		{RoleAttorneyAdmin, ReasonToneInappropriate, true},
		{RoleAttorneyAdmin, ReasonLegalRisk, true},
		{RoleAttorneyAdmin, "other: cites a repealed statute", true},
		{RoleAttorneyAdmin, "other:   ", false},
		{RoleAttorneyAdmin, "my own reason", false},
		{RoleAttorneyAdmin, "", false},
		{RoleSuperAdmin, "my own reason", true},
		{RoleSuperAdmin, "  ", false},
	}
	for _, tc := range cases {
		if got := ValidReason(tc.role, tc.reason); got != tc.want {
			t.Errorf("ValidReason(%s, %q) = %v, want %v", tc.role, tc.reason, got, tc.want)
		}
	}
}

func TestClaimDeniedForNonReviewer(t *testing.T) {
	svc, _, done := newTestService(t)
	defer done()

	err := svc.Claim(context.Background(), "L1", Actor{ID: "u1", Role: RoleSubscriber})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestClaimConflictPropagates(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectExec("UPDATE letters").
		WithArgs("L1", "rev-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The letter exists but is already claimed, so the follow-up read finds it.
	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(claimedLetterRow("L1", "rev-1"))

	err := svc.Claim(context.Background(), "L1", Actor{ID: "rev-2", Role: RoleAttorneyAdmin})
	if !errors.Is(err, letters.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict, got %v", err)
	}
}

func TestClaimRecordsAudit(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectExec("UPDATE letters").
		WithArgs("L1", "rev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Claim(context.Background(), "L1", Actor{ID: "rev-1", Role: RoleAttorneyAdmin}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApproveRequiresContent(t *testing.T) {
	svc, _, done := newTestService(t)
	defer done()

	err := svc.Approve(context.Background(), "L1", Actor{ID: "rev-1", Role: RoleAttorneyAdmin}, "   ", "")
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestRejectValidatesReasonBeforeTouchingStore(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	err := svc.Reject(context.Background(), "L1", Actor{ID: "rev-1", Role: RoleAttorneyAdmin}, "because", "")
	if !errors.Is(err, ErrInvalidReason) {
		t.Fatalf("expected ErrInvalidReason, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("store should not have been touched: %v", err)
	}
}

func TestBulkApproveReportsPerLetterOutcomes(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	// L1 approves, L2 is not in a reviewable state.
	mock.ExpectQuery("UPDATE letters").
		WithArgs("L1", "admin-1", "batch pass").
		WillReturnRows(sqlmock.NewRows([]string{"prior_status"}).AddRow("pending_review"))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(sqlmock.NewRows([]string{"id"})) // publish lookup, tolerated miss
	mock.ExpectQuery("UPDATE letters").
		WithArgs("L2", "admin-1", "batch pass").
		WillReturnRows(sqlmock.NewRows([]string{"prior_status"}))

	result, err := svc.BulkApprove(context.Background(), []string{"L1", "L2"},
		Actor{ID: "admin-1", Role: RoleSuperAdmin}, "batch pass")
	if err != nil {
		t.Fatalf("BulkApprove: %v", err)
	}
	if len(result.Approved) != 1 || result.Approved[0] != "L1" {
		t.Fatalf("unexpected approved set: %v", result.Approved)
	}
	if _, ok := result.Failed["L2"]; !ok {
		t.Fatalf("expected L2 in failed set: %v", result.Failed)
	}
}

func TestBulkApproveAuditsClaimedLetterPriorStatus(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	// A letter already claimed by a reviewer is still bulk-approvable; the
	// audit entry must carry under_review, not pending_review, as old status.
	mock.ExpectQuery("UPDATE letters").
		WithArgs("L1", "admin-1", "batch pass").
		WillReturnRows(sqlmock.NewRows([]string{"prior_status"}).AddRow("under_review"))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WithArgs(sqlmock.AnyArg(), "L1", "approved", "under_review", "approved",
			"admin-1", "batch pass", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM letters WHERE id").
		WithArgs("L1").
		WillReturnRows(claimedLetterRow("L1", "rev-1"))

	result, err := svc.BulkApprove(context.Background(), []string{"L1"},
		Actor{ID: "admin-1", Role: RoleSuperAdmin}, "batch pass")
	if err != nil {
		t.Fatalf("BulkApprove: %v", err)
	}
	if len(result.Approved) != 1 {
		t.Fatalf("unexpected approved set: %v", result.Approved)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBulkApproveDeniedForAttorney(t *testing.T) {
	svc, _, done := newTestService(t)
	defer done()

	_, err := svc.BulkApprove(context.Background(), []string{"L1"},
		Actor{ID: "rev-1", Role: RoleAttorneyAdmin}, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestReassignSuperAdminOnly(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	err := svc.Reassign(context.Background(), "L1", "rev-2", Actor{ID: "rev-1", Role: RoleAttorneyAdmin})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	mock.ExpectExec("UPDATE letters").
		WithArgs("L1", "rev-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Reassign(context.Background(), "L1", "rev-2", Actor{ID: "admin-1", Role: RoleSuperAdmin}); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
}
