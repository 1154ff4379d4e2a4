package scrivener

import "letterworks/pkg/models"

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// NeedsSubscription tells the client to redirect to purchase.
	NeedsSubscription bool `json:"needsSubscription,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationErrorResponse represents a validation error with field details
type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// LetterResponse wraps a single letter
type LetterResponse struct {
	Letter models.Letter `json:"letter"`
}

// LettersResponse wraps a letter listing
type LettersResponse struct {
	Letters []models.Letter `json:"letters"`
	Count   int             `json:"count"`
}

// AuditHistoryResponse wraps a letter's ordered audit trail
type AuditHistoryResponse struct {
	LetterID string              `json:"letterId"`
	Entries  []models.AuditEntry `json:"entries"`
}

// BulkApproveResponse reports per-letter outcomes of a bulk approval
type BulkApproveResponse struct {
	Approved []string          `json:"approved"`
	Failed   map[string]string `json:"failed,omitempty"` // letter id -> error
}
