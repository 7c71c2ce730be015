package transaction

import (
	"fmt"
	"strings"
)

// LostReason explains why a buyer did not win a lead
type LostReason int

const (
	LostOutbid LostReason = iota
	LostTimeout
	LostNoBid
	LostPostRejected
	LostCascadeExhausted
	LostDuplicateLead
	LostCapReached
	LostOutsideHours
	LostComplianceMissing
	LostNotSelected
	LostLowerPriority
)

func (r LostReason) String() string {
	switch r {
	case LostOutbid:
		return "OUTBID"
	case LostTimeout:
		return "TIMEOUT"
	case LostNoBid:
		return "NO_BID"
	case LostPostRejected:
		return "POST_REJECTED"
	case LostCascadeExhausted:
		return "CASCADE_EXHAUSTED"
	case LostDuplicateLead:
		return "DUPLICATE_LEAD"
	case LostCapReached:
		return "CAP_REACHED"
	case LostOutsideHours:
		return "OUTSIDE_HOURS"
	case LostComplianceMissing:
		return "COMPLIANCE_MISSING"
	case LostNotSelected:
		return "NOT_SELECTED"
	case LostLowerPriority:
		return "LOWER_PRIORITY"
	default:
		return "UNKNOWN"
	}
}

func ParseLostReason(s string) (LostReason, error) {
	switch s {
	case "OUTBID":
		return LostOutbid, nil
	case "TIMEOUT":
		return LostTimeout, nil
	case "NO_BID":
		return LostNoBid, nil
	case "POST_REJECTED":
		return LostPostRejected, nil
	case "CASCADE_EXHAUSTED":
		return LostCascadeExhausted, nil
	case "DUPLICATE_LEAD":
		return LostDuplicateLead, nil
	case "CAP_REACHED":
		return LostCapReached, nil
	case "OUTSIDE_HOURS":
		return LostOutsideHours, nil
	case "COMPLIANCE_MISSING":
		return LostComplianceMissing, nil
	case "NOT_SELECTED":
		return LostNotSelected, nil
	case "LOWER_PRIORITY":
		return LostLowerPriority, nil
	default:
		return LostPostRejected, fmt.Errorf("unknown lost reason: %s", s)
	}
}

// MapHTTPStatus classifies a rejection by the buyer's HTTP status code
func MapHTTPStatus(statusCode int) LostReason {
	switch {
	case statusCode == 409:
		return LostDuplicateLead
	case statusCode == 429:
		return LostCapReached
	case statusCode == 401 || statusCode == 403:
		return LostPostRejected
	case statusCode >= 500:
		return LostPostRejected
	default:
		return LostPostRejected
	}
}

// MapRejectionText classifies a rejection by the reason text the buyer
// returned. Matching is by substring since networks phrase these
// freely.
func MapRejectionText(reason string) LostReason {
	lower := strings.ToLower(reason)

	switch {
	case strings.Contains(lower, "duplicate") || strings.Contains(lower, "already"):
		return LostDuplicateLead
	case strings.Contains(lower, "cap") || strings.Contains(lower, "limit") || strings.Contains(lower, "volume"):
		return LostCapReached
	case strings.Contains(lower, "hours") || strings.Contains(lower, "closed") || strings.Contains(lower, "schedule"):
		return LostOutsideHours
	case strings.Contains(lower, "compliance") || strings.Contains(lower, "consent") ||
		strings.Contains(lower, "trusted") || strings.Contains(lower, "jornaya") || strings.Contains(lower, "tcpa"):
		return LostComplianceMissing
	default:
		return LostPostRejected
	}
}
