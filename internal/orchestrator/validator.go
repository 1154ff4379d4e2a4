package orchestrator

import (
	"strings"

	"letterworks/pkg/models"
)

// IntakeValidator checks the fields every letter type needs before a credit
// is spent. Letter-type-specific schemas live with the intake frontend; this
// is the engine-side floor.
type IntakeValidator struct{}

// Validate reports whether the intake is usable and which fields are not.
func (IntakeValidator) Validate(intake models.IntakeData) (bool, []string) {
	var missing []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	require("senderName", intake.SenderName)
	require("recipientName", intake.RecipientName)
	require("issueDescription", intake.IssueDescription)
	require("desiredOutcome", intake.DesiredOutcome)

	return len(missing) == 0, missing
}
