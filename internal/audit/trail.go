// Package audit records letter lifecycle events. Writes are best effort:
// audit must never make a user-facing operation fail, so errors are logged
// and swallowed.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

// Trail appends to and reads the letter audit log.
type Trail struct {
	db     *sql.DB
	logger logging.Logger
}

// NewTrail creates an audit trail backed by the given database.
func NewTrail(db *sql.DB, logger logging.Logger) *Trail {
	return &Trail{db: db, logger: logger}
}

// Record appends one audit entry. Failures are logged, never returned.
func (t *Trail) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Metadata == nil {
		entry.Metadata = models.JSONB{}
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO letter_audit_log (id, letter_id, action, old_status, new_status, actor_id, notes, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
	`, entry.ID, entry.LetterID, entry.Action,
		string(entry.OldStatus), string(entry.NewStatus),
		entry.ActorID, entry.Notes, entry.Metadata)
	if err != nil {
		t.logger.WithFields(logging.Fields{
			"letter_id": entry.LetterID,
			"action":    entry.Action,
			"error":     err.Error(),
		}).Error("Failed to record audit entry")
	}
}

// History returns a letter's audit entries in chronological order.
func (t *Trail) History(ctx context.Context, letterID string) ([]models.AuditEntry, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, letter_id, action,
		       COALESCE(old_status, ''), COALESCE(new_status, ''),
		       actor_id, notes, metadata, created_at
		FROM letter_audit_log
		WHERE letter_id = $1
		ORDER BY created_at ASC
	`, letterID)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.LetterID, &e.Action,
			&e.OldStatus, &e.NewStatus,
			&e.ActorID, &e.Notes, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
