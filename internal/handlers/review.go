package handlers

import (
	"errors"
	"net/http"

	"letterworks/internal/letters"
	"letterworks/internal/review"
	scrivenerapi "letterworks/pkg/api/scrivener"
	"letterworks/pkg/middleware"
	"letterworks/pkg/models"
)

// GetPendingLetters returns the unclaimed review queue, oldest first.
func GetPendingLetters(c middleware.Context) {
	list, err := reviews.Pending(c.Request.Context(), actorFrom(c))
	if errors.Is(err, review.ErrPermissionDenied) {
		c.JSON(http.StatusForbidden, scrivenerapi.ErrorResponse{Error: "Reviewer role required"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to list pending letters")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to list pending letters"})
		return
	}

	if metrics != nil && metrics.PendingQueueDepth != nil {
		metrics.PendingQueueDepth.WithLabelValues().Set(float64(len(list)))
	}
	c.JSON(http.StatusOK, scrivenerapi.LettersResponse{Letters: list, Count: len(list)})
}

// StartReview claims a pending letter for the caller. Exactly one of any
// set of racing claims wins.
func StartReview(c middleware.Context) {
	actor := actorFrom(c)
	letterID := c.Param("id")

	err := reviews.Claim(c.Request.Context(), letterID, actor)
	switch {
	case errors.Is(err, review.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, scrivenerapi.ErrorResponse{Error: "Reviewer role required"})
	case errors.Is(err, letters.ErrNotFound):
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
	case errors.Is(err, letters.ErrClaimConflict):
		inc(metrics.ClaimConflicts)
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter already claimed by another reviewer", Code: "claim_conflict"})
	case err != nil:
		logger.WithField("error", err.Error()).Error("Failed to claim letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to claim letter"})
	default:
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Review started"})
	}
}

// ApproveLetter finalizes a letter the caller has under review.
func ApproveLetter(c middleware.Context) {
	actor := actorFrom(c)
	letterID := c.Param("id")

	var req scrivenerapi.ApproveLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	err := reviews.Approve(c.Request.Context(), letterID, actor, req.FinalContent, req.Notes)
	switch {
	case errors.Is(err, review.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, scrivenerapi.ErrorResponse{Error: "Approve capability required"})
	case errors.Is(err, review.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: "Final content must not be empty"})
	case errors.Is(err, letters.ErrInvalidTransition):
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter is not under your review"})
	case err != nil:
		logger.WithField("error", err.Error()).Error("Failed to approve letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to approve letter"})
	default:
		inc(metrics.ReviewDecisions, "approved")
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter approved"})
	}
}

// RejectLetter returns a letter to its owner with a reason.
func RejectLetter(c middleware.Context) {
	actor := actorFrom(c)
	letterID := c.Param("id")

	var req scrivenerapi.RejectLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	err := reviews.Reject(c.Request.Context(), letterID, actor, req.Reason, req.Notes)
	switch {
	case errors.Is(err, review.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, scrivenerapi.ErrorResponse{Error: "Reject capability required"})
	case errors.Is(err, review.ErrInvalidReason):
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: "Rejection reason must come from the taxonomy or use the other: prefix", Code: "invalid_reason"})
	case errors.Is(err, letters.ErrInvalidTransition):
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter is not under your review"})
	case err != nil:
		logger.WithField("error", err.Error()).Error("Failed to reject letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to reject letter"})
	default:
		inc(metrics.ReviewDecisions, "rejected")
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter rejected"})
	}
}

// ResubmitLetter puts the caller's rejected letter back in the queue with
// revised content.
func ResubmitLetter(c middleware.Context) {
	userID := c.GetString("user_id")
	letterID := c.Param("id")

	var req scrivenerapi.ResubmitLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	err := reviews.Resubmit(c.Request.Context(), letterID, userID, req.Content)
	switch {
	case errors.Is(err, review.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: "Revised content must not be empty"})
	case errors.Is(err, letters.ErrInvalidTransition):
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Only rejected letters can be resubmitted"})
	case err != nil:
		logger.WithField("error", err.Error()).Error("Failed to resubmit letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to resubmit letter"})
	default:
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter resubmitted for review"})
	}
}

// BulkApproveLetters approves a batch in one call. super_admin only.
func BulkApproveLetters(c middleware.Context) {
	actor := actorFrom(c)

	var req scrivenerapi.BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}
	if len(req.LetterIDs) == 0 {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: "No letter ids given"})
		return
	}

	result, err := reviews.BulkApprove(c.Request.Context(), req.LetterIDs, actor, req.Notes)
	if errors.Is(err, review.ErrPermissionDenied) {
		c.JSON(http.StatusForbidden, scrivenerapi.ErrorResponse{Error: "Bulk operations require super_admin"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Bulk approve failed")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Bulk approve failed"})
		return
	}

	for range result.Approved {
		inc(metrics.ReviewDecisions, "approved")
	}
	c.JSON(http.StatusOK, scrivenerapi.BulkApproveResponse{
		Approved: result.Approved,
		Failed:   result.Failed,
	})
}

// ReassignLetter moves an in-progress review to another reviewer.
// super_admin only.
func ReassignLetter(c middleware.Context) {
	actor := actorFrom(c)
	letterID := c.Param("id")

	var req scrivenerapi.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	err := reviews.Reassign(c.Request.Context(), letterID, req.ReviewerID, actor)
	switch {
	case errors.Is(err, review.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, scrivenerapi.ErrorResponse{Error: "Reassignment requires super_admin"})
	case errors.Is(err, letters.ErrInvalidTransition):
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter is not under review"})
	case err != nil:
		logger.WithField("error", err.Error()).Error("Failed to reassign letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to reassign letter"})
	default:
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter reassigned"})
	}
}

// GetAuditHistory returns a letter's ordered audit trail.
func GetAuditHistory(c middleware.Context) {
	actor := actorFrom(c)
	letterID := c.Param("id")

	entries, err := reviews.History(c.Request.Context(), letterID, actor)
	switch {
	case errors.Is(err, letters.ErrNotFound):
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
	case errors.Is(err, review.ErrPermissionDenied):
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
	case err != nil:
		logger.WithField("error", err.Error()).Error("Failed to read audit history")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to read audit history"})
	default:
		c.JSON(http.StatusOK, scrivenerapi.AuditHistoryResponse{LetterID: letterID, Entries: entries})
	}
}

// RecordDeliveryEvent ingests pdf_generated and email_sent callbacks from
// the delivery pipeline over service auth. email_sent completes the letter.
func RecordDeliveryEvent(c middleware.Context) {
	letterID := c.Param("id")

	var req scrivenerapi.DeliveryEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	switch req.Event {
	case "pdf_generated":
		var notes *string
		if req.Notes != "" {
			notes = &req.Notes
		}
		trail.Record(c.Request.Context(), models.AuditEntry{
			LetterID: letterID,
			Action:   models.ActionPDFGenerated,
			Notes:    notes,
		})
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true})
	case "email_sent":
		err := reviews.Complete(c.Request.Context(), letterID)
		if errors.Is(err, letters.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter is not approved"})
			return
		}
		if err != nil {
			logger.WithField("error", err.Error()).Error("Failed to complete letter")
			c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to complete letter"})
			return
		}
		trail.Record(c.Request.Context(), models.AuditEntry{
			LetterID: letterID,
			Action:   models.ActionEmailSent,
		})
		c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true})
	default:
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: "Unknown delivery event"})
	}
}
