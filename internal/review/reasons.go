package review

import "strings"

// The fixed rejection taxonomy attorneys pick from. Reviewers needing
// something outside the list use the "other:" escape hatch with free text.
const (
	ReasonInsufficientDetail = "insufficient_detail"
	ReasonFactualInaccuracy  = "factual_inaccuracy"
	ReasonToneInappropriate  = "tone_inappropriate"
	ReasonLegalRisk          = "legal_risk"
	ReasonWrongLetterType    = "wrong_letter_type"
	ReasonFormattingIssues   = "formatting_issues"

	otherReasonPrefix = "other:"
)

// RejectionReasons lists the taxonomy in display order.
var RejectionReasons = []string{
	ReasonInsufficientDetail,
	ReasonFactualInaccuracy,
	ReasonToneInappropriate,
	ReasonLegalRisk,
	ReasonWrongLetterType,
	ReasonFormattingIssues,
}

var knownReasons = func() map[string]bool {
	m := make(map[string]bool, len(RejectionReasons))
	for _, r := range RejectionReasons {
		m[r] = true
	}
	return m
}()

// ValidReason reports whether the given rejection reason is acceptable for
// the role. attorney_admin is held to the taxonomy plus a non-empty
// "other: ..." escape; super_admin may free-type anything non-empty.
func ValidReason(role Role, reason string) bool {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false
	}
	if role == RoleSuperAdmin {
		return true
	}
	if knownReasons[reason] {
		return true
	}
	if rest, ok := strings.CutPrefix(reason, otherReasonPrefix); ok {
		return strings.TrimSpace(rest) != ""
	}
	return false
}
