package handlers

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"letterworks/internal/ledger"
	"letterworks/internal/letters"
	"letterworks/internal/orchestrator"
	"letterworks/internal/review"
	scrivenerapi "letterworks/pkg/api/scrivener"
	"letterworks/pkg/middleware"
	"letterworks/pkg/models"
)

func inc(c *prometheus.CounterVec, labels ...string) {
	if c != nil {
		c.WithLabelValues(labels...).Inc()
	}
}

func actorFrom(c middleware.Context) review.Actor {
	return review.Actor{
		ID:   c.GetString("user_id"),
		Role: review.ParseRole(c.GetString("role")),
	}
}

// GenerateLetter runs the full generation flow: validate, deduct a credit,
// call the provider chain, and land the letter in the review queue.
func GenerateLetter(c middleware.Context) {
	userID := c.GetString("user_id")

	var req scrivenerapi.GenerateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := orch.Generate(c.Request.Context(), userID, req.LetterType, req.IntakeData)
	if err != nil {
		var verr *orchestrator.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, scrivenerapi.ValidationErrorResponse{
				Error:  "Invalid intake data",
				Fields: verr.Fields,
			})
			return
		}
		if errors.Is(err, orchestrator.ErrGenerationFailed) {
			inc(metrics.GenerationFailed, req.LetterType)
			c.JSON(http.StatusBadGateway, scrivenerapi.ErrorResponse{Error: err.Error()})
			return
		}
		logger.WithField("error", err.Error()).Error("Letter generation failed")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to generate letter"})
		return
	}

	if !result.Allowed {
		c.JSON(http.StatusPaymentRequired, scrivenerapi.ErrorResponse{
			Error:             result.Message,
			Code:              "allowance_exhausted",
			NeedsSubscription: result.NeedsSubscription,
		})
		return
	}

	inc(metrics.LettersGenerated, req.LetterType)
	inc(metrics.CreditsDeducted)

	aiDraft := ""
	if result.Letter.AIDraftContent != nil {
		aiDraft = *result.Letter.AIDraftContent
	}
	c.JSON(http.StatusCreated, scrivenerapi.GenerateLetterResponse{
		LetterID:    result.Letter.ID,
		Status:      string(result.Letter.Status),
		IsFreeTrial: result.IsFreeTrial,
		AIDraft:     aiDraft,
	})
}

// CheckAllowance reports the caller's remaining letter credit without
// consuming anything.
func CheckAllowance(c middleware.Context) {
	userID := c.GetString("user_id")

	a, err := allowance.CheckAllowance(c.Request.Context(), userID)
	if errors.Is(err, ledger.ErrNoAccount) {
		c.JSON(http.StatusOK, scrivenerapi.AllowanceResponse{HasAllowance: false})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to check allowance")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to check allowance"})
		return
	}

	c.JSON(http.StatusOK, scrivenerapi.AllowanceResponse{
		HasAllowance: a.HasAllowance,
		Remaining:    a.Remaining,
		Unlimited:    a.Unlimited,
		IsFreeTrial:  a.IsFreeTrial,
	})
}

// ListLetters returns the caller's letters, optionally filtered by status.
func ListLetters(c middleware.Context) {
	userID := c.GetString("user_id")

	status := models.LetterStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: "Unknown status filter"})
		return
	}

	list, err := store.ListByUser(c.Request.Context(), userID, status)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to list letters")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to list letters"})
		return
	}

	c.JSON(http.StatusOK, scrivenerapi.LettersResponse{Letters: list, Count: len(list)})
}

// SaveDraft stores a manually written letter without touching the allowance.
func SaveDraft(c middleware.Context) {
	userID := c.GetString("user_id")

	var req scrivenerapi.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	letter, err := store.Create(c.Request.Context(), userID, req.LetterType, req.IntakeData, models.StatusDraft)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to save draft")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to save draft"})
		return
	}
	if req.Content != "" {
		if err := store.UpdateDraft(c.Request.Context(), letter.ID, req.Content); err != nil {
			logger.WithField("error", err.Error()).Error("Failed to store draft content")
			c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to save draft"})
			return
		}
		letter.AIDraftContent = &req.Content
	}

	trail.Record(c.Request.Context(), models.AuditEntry{
		LetterID:  letter.ID,
		Action:    models.ActionCreated,
		NewStatus: models.StatusDraft,
		ActorID:   &userID,
	})

	c.JSON(http.StatusCreated, scrivenerapi.LetterResponse{Letter: letter})
}

// GetLetter returns one letter. Owners see their own; reviewers see any.
func GetLetter(c middleware.Context) {
	actor := actorFrom(c)
	letterID := c.Param("id")

	letter, err := store.Get(c.Request.Context(), letterID)
	if errors.Is(err, letters.ErrNotFound) {
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to fetch letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to fetch letter"})
		return
	}
	if letter.UserID != actor.ID && !actor.Role.IsReviewer() {
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
		return
	}

	c.JSON(http.StatusOK, scrivenerapi.LetterResponse{Letter: letter})
}

// ImproveLetter regenerates a draft with the caller's feedback. Free of
// charge; the letter keeps its status.
func ImproveLetter(c middleware.Context) {
	userID := c.GetString("user_id")

	var req scrivenerapi.ImproveLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}

	letter, err := orch.Improve(c.Request.Context(), req.LetterID, userID, req.Feedback)
	if errors.Is(err, letters.ErrNotFound) {
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
		return
	}
	if errors.Is(err, orchestrator.ErrImproveFailed) {
		c.JSON(http.StatusBadGateway, scrivenerapi.ErrorResponse{Error: err.Error()})
		return
	}
	if errors.Is(err, letters.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter can no longer be edited"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to improve letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to improve letter"})
		return
	}

	c.JSON(http.StatusOK, scrivenerapi.LetterResponse{Letter: letter})
}

// SubmitLetter moves the caller's draft into the review queue.
func SubmitLetter(c middleware.Context) {
	userID := c.GetString("user_id")
	letterID := c.Param("id")

	err := reviews.Submit(c.Request.Context(), letterID, userID)
	if errors.Is(err, letters.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter is not a submittable draft"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to submit letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to submit letter"})
		return
	}

	c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter submitted for review"})
}

// RetryLetter returns a failed letter to draft so the owner can try again.
func RetryLetter(c middleware.Context) {
	userID := c.GetString("user_id")
	letterID := c.Param("id")

	err := store.RetryFailed(c.Request.Context(), letterID, userID)
	if errors.Is(err, letters.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter is not in a failed state"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to retry letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to retry letter"})
		return
	}

	trail.Record(c.Request.Context(), models.AuditEntry{
		LetterID:  letterID,
		Action:    models.ActionRetried,
		OldStatus: models.StatusFailed,
		NewStatus: models.StatusDraft,
		ActorID:   &userID,
	})

	c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter returned to draft"})
}

// DeleteLetter removes a letter that never completed review.
func DeleteLetter(c middleware.Context) {
	userID := c.GetString("user_id")
	letterID := c.Param("id")

	err := store.Delete(c.Request.Context(), letterID, userID)
	if errors.Is(err, letters.ErrNotFound) {
		c.JSON(http.StatusNotFound, scrivenerapi.ErrorResponse{Error: "Letter not found"})
		return
	}
	if errors.Is(err, letters.ErrNotDeletable) {
		c.JSON(http.StatusConflict, scrivenerapi.ErrorResponse{Error: "Letter cannot be deleted in its current status"})
		return
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to delete letter")
		c.JSON(http.StatusInternalServerError, scrivenerapi.ErrorResponse{Error: "Failed to delete letter"})
		return
	}

	trail.Record(c.Request.Context(), models.AuditEntry{
		LetterID: letterID,
		Action:   models.ActionDeleted,
		ActorID:  &userID,
	})

	c.JSON(http.StatusOK, scrivenerapi.SuccessResponse{Success: true, Message: "Letter deleted"})
}
