package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

func newTestTrail(t *testing.T) (*Trail, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewTrail(db, logging.NewLogger()), mock, func() { db.Close() }
}

func TestRecordSwallowsDatabaseErrors(t *testing.T) {
	trail, mock, done := newTestTrail(t)
	defer done()

	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnError(errors.New("connection refused"))

	// Record must not panic or surface the failure.
	trail.Record(context.Background(), models.AuditEntry{
		LetterID:  "L1",
		Action:    models.ActionApproved,
		OldStatus: models.StatusUnderReview,
		NewStatus: models.StatusApproved,
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordAssignsID(t *testing.T) {
	trail, mock, done := newTestTrail(t)
	defer done()

	mock.ExpectExec("INSERT INTO letter_audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))

	trail.Record(context.Background(), models.AuditEntry{
		LetterID: "L1",
		Action:   models.ActionCreated,
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryReturnsChronologicalEntries(t *testing.T) {
	trail, mock, done := newTestTrail(t)
	defer done()

	created := time.Now().Add(-time.Hour)
	approved := time.Now()
	mock.ExpectQuery("FROM letter_audit_log").
		WithArgs("L1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "letter_id", "action", "old_status", "new_status",
			"actor_id", "notes", "metadata", "created_at",
		}).
			AddRow("A1", "L1", "created", "", "generating", nil, nil, []byte(`{}`), created).
			AddRow("A2", "L1", "approved", "under_review", "approved", "rev-1", "looks good", []byte(`{}`), approved))

	entries, err := trail.History(context.Background(), "L1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != models.ActionCreated {
		t.Fatalf("expected created first, got %s", entries[0].Action)
	}
	if entries[1].ActorID == nil || *entries[1].ActorID != "rev-1" {
		t.Fatalf("expected actor rev-1, got %v", entries[1].ActorID)
	}
}
