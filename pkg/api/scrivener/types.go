package scrivener

import "letterworks/pkg/models"

// GenerateLetterRequest is the inbound payload for letter generation
type GenerateLetterRequest struct {
	LetterType string            `json:"letterType" binding:"required"`
	IntakeData models.IntakeData `json:"intakeData" binding:"required"`
}

// GenerateLetterResponse is returned when generation succeeds
type GenerateLetterResponse struct {
	LetterID    string `json:"letterId"`
	Status      string `json:"status"`
	IsFreeTrial bool   `json:"isFreeTrial"`
	AIDraft     string `json:"aiDraft"`
}

// AllowanceResponse reports a user's remaining letter credit
type AllowanceResponse struct {
	HasAllowance bool `json:"hasAllowance"`
	// Remaining is null for unlimited accounts.
	Remaining   *int `json:"remaining"`
	Unlimited   bool `json:"unlimited"`
	IsFreeTrial bool `json:"isFreeTrial"`
}

// SaveDraftRequest saves a manually drafted letter
type SaveDraftRequest struct {
	LetterType string            `json:"letterType" binding:"required"`
	IntakeData models.IntakeData `json:"intakeData"`
	Content    string            `json:"content"`
}

// ImproveLetterRequest regenerates a draft's content with user feedback
type ImproveLetterRequest struct {
	LetterID string `json:"letterId" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
}

// ApproveLetterRequest carries the reviewer-approved final content
type ApproveLetterRequest struct {
	FinalContent string `json:"finalContent" binding:"required"`
	Notes        string `json:"notes,omitempty"`
}

// RejectLetterRequest carries the rejection reason
type RejectLetterRequest struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes,omitempty"`
}

// ResubmitLetterRequest carries owner-revised content after rejection
type ResubmitLetterRequest struct {
	Content string `json:"content" binding:"required"`
}

// BulkApproveRequest approves several letters in one call (super_admin only)
type BulkApproveRequest struct {
	LetterIDs []string `json:"letterIds" binding:"required"`
	Notes     string   `json:"notes,omitempty"`
}

// ReassignRequest overrides an existing claim (super_admin only)
type ReassignRequest struct {
	ReviewerID string `json:"reviewerId" binding:"required"`
}

// DeliveryEventRequest records a downstream delivery event (service-to-service)
type DeliveryEventRequest struct {
	Event string `json:"event" binding:"required"` // pdf_generated | email_sent
	Notes string `json:"notes,omitempty"`
}
