package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// LetterStatus is the closed set of letter workflow states
type LetterStatus string

const (
	StatusDraft         LetterStatus = "draft"
	StatusGenerating    LetterStatus = "generating"
	StatusPendingReview LetterStatus = "pending_review"
	StatusUnderReview   LetterStatus = "under_review"
	StatusApproved      LetterStatus = "approved"
	StatusRejected      LetterStatus = "rejected"
	StatusCompleted     LetterStatus = "completed"
	StatusFailed        LetterStatus = "failed"
)

// Valid reports whether s is a known letter status.
func (s LetterStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusGenerating, StatusPendingReview, StatusUnderReview,
		StatusApproved, StatusRejected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Deletable reports whether a letter in this status may be deleted.
// Letters in the review pipeline or already delivered are kept forever.
func (s LetterStatus) Deletable() bool {
	switch s {
	case StatusDraft, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// IntakeData holds the structured case facts supplied by the user
type IntakeData struct {
	SenderName        string `json:"senderName"`
	SenderAddress     string `json:"senderAddress,omitempty"`
	SenderState       string `json:"senderState,omitempty"`
	RecipientName     string `json:"recipientName"`
	RecipientAddress  string `json:"recipientAddress,omitempty"`
	RecipientState    string `json:"recipientState,omitempty"`
	IssueDescription  string `json:"issueDescription"`
	DesiredOutcome    string `json:"desiredOutcome"`
	AmountDemanded    string `json:"amountDemanded,omitempty"`
	DeadlineDate      string `json:"deadlineDate,omitempty"`
	IncidentDate      string `json:"incidentDate,omitempty"`
	AdditionalDetails string `json:"additionalDetails,omitempty"`
}

// Value implements the driver.Valuer interface for IntakeData
func (d IntakeData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface for IntakeData
func (d *IntakeData) Scan(value interface{}) error {
	if value == nil {
		*d = IntakeData{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// Letter represents one user's request for a drafted document
type Letter struct {
	ID               string       `json:"id" db:"id"`
	UserID           string       `json:"user_id" db:"user_id"`
	LetterType       string       `json:"letter_type" db:"letter_type"`
	IntakeData       IntakeData   `json:"intake_data" db:"intake_data"`
	Status           LetterStatus `json:"status" db:"status"`
	AIDraftContent   *string      `json:"ai_draft_content,omitempty" db:"ai_draft_content"`
	FinalContent     *string      `json:"final_content,omitempty" db:"final_content"`
	AssignedReviewer *string      `json:"assigned_reviewer,omitempty" db:"assigned_reviewer"`
	RejectionReason  *string      `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ReviewNotes      *string      `json:"review_notes,omitempty" db:"review_notes"`
	GenerationError  *string      `json:"generation_error,omitempty" db:"generation_error"`

	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
	ReviewStartedAt *time.Time `json:"review_started_at,omitempty" db:"review_started_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// AllowanceAccount represents a per-user letter credit balance.
// CreditsRemaining == nil means unlimited (privileged accounts).
type AllowanceAccount struct {
	UserID           string     `json:"user_id" db:"user_id"`
	MonthlyAllowance int        `json:"monthly_allowance" db:"monthly_allowance"`
	CreditsRemaining *int       `json:"credits_remaining" db:"credits_remaining"`
	IsFreeTrial      bool       `json:"is_free_trial" db:"is_free_trial"`
	PeriodStart      time.Time  `json:"period_start" db:"period_start"`
	PeriodEnd        *time.Time `json:"period_end,omitempty" db:"period_end"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Unlimited reports whether the account has no credit cap.
func (a AllowanceAccount) Unlimited() bool {
	return a.CreditsRemaining == nil
}

// AuditAction is the closed set of recordable letter events
type AuditAction string

const (
	ActionCreated          AuditAction = "created"
	ActionSubmitted        AuditAction = "submitted"
	ActionReviewStarted    AuditAction = "review_started"
	ActionApproved         AuditAction = "approved"
	ActionRejected         AuditAction = "rejected"
	ActionResubmitted      AuditAction = "resubmitted"
	ActionRetried          AuditAction = "retried"
	ActionCompleted        AuditAction = "completed"
	ActionDeleted          AuditAction = "deleted"
	ActionImproved         AuditAction = "improved"
	ActionGenerationFailed AuditAction = "generation_failed"
	ActionPDFGenerated     AuditAction = "pdf_generated"
	ActionEmailSent        AuditAction = "email_sent"
)

// AuditEntry is an append-only fact about a letter
type AuditEntry struct {
	ID        string       `json:"id" db:"id"`
	LetterID  string       `json:"letter_id" db:"letter_id"`
	Action    AuditAction  `json:"action" db:"action"`
	OldStatus LetterStatus `json:"old_status,omitempty" db:"old_status"`
	NewStatus LetterStatus `json:"new_status,omitempty" db:"new_status"`
	ActorID   *string      `json:"actor_id,omitempty" db:"actor_id"`
	Notes     *string      `json:"notes,omitempty" db:"notes"`
	Metadata  JSONB        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
