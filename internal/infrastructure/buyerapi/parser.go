package buyerapi

import (
	"encoding/json"
	"strings"

	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Parser extracts an accept/reject decision and a bid amount from
// heterogeneous buyer responses. Networks disagree on everything:
// field names, casing, whether acceptance is a flag, a status string,
// or just the presence of their own lead ID.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Outcome is the parsed classification of one buyer response. Exactly
// three things can come back: an acceptance (with an optional bid), a
// rejection (with a mapped lost reason), or a body we could not read.
type Outcome interface {
	isOutcome()
}

// Accepted means the buyer wants the lead. For PING responses Bid
// carries the offer; for POST responses it is usually zero.
type Accepted struct {
	Bid         values.Money
	PingToken   string
	BuyerLeadID string
	RawStatus   string
}

// Rejected means the buyer declined, with the reason text they gave
// and its classification.
type Rejected struct {
	Reason     string
	LostReason transaction.LostReason
	RawStatus  string
}

// Malformed means the body was not interpretable. Raw holds a bounded
// prefix for the audit row.
type Malformed struct {
	Raw string
}

func (Accepted) isOutcome()  {}
func (Rejected) isOutcome()  {}
func (Malformed) isOutcome() {}

// bidFieldProbes is the default search order for the bid amount when
// the buyer config does not name a field
var bidFieldProbes = []string{
	"bidAmount", "bid_amount", "price", "cost", "offer", "amount", "value", "lead_price",
}

var reasonFields = []string{"reason", "rejection_reason", "error", "message"}

const maxRawEcho = 512

// Parse classifies a buyer response. bidField, when non-empty,
// overrides the probe list.
func (p *Parser) Parse(body []byte, statusCode int, bidField string) Outcome {
	fields := decodeBody(body)

	if statusCode < 200 || statusCode >= 300 {
		reason := extractReason(fields)
		lost := transaction.MapHTTPStatus(statusCode)
		// 409 and 429 are unambiguous; for the rest the reason text is
		// more specific than the code
		if lost == transaction.LostPostRejected && reason != "" {
			lost = transaction.MapRejectionText(reason)
		}
		return Rejected{
			Reason:     reason,
			LostReason: lost,
			RawStatus:  extractStatus(fields),
		}
	}

	if fields == nil {
		return Malformed{Raw: truncateRaw(body)}
	}

	rawStatus := extractStatus(fields)

	if isAccepted(fields) {
		bid, _ := extractBid(fields, bidField)
		return Accepted{
			Bid:         bid,
			PingToken:   firstString(fields, "pingToken", "ping_token", "token"),
			BuyerLeadID: firstString(fields, "leadId", "lead_id", "confirmation", "confirmation_id"),
			RawStatus:   rawStatus,
		}
	}

	// Some networks answer a PING with nothing but a price
	if bid, ok := extractBid(fields, bidField); ok && bid.IsPositive() {
		return Accepted{
			Bid:         bid,
			PingToken:   firstString(fields, "pingToken", "ping_token", "token"),
			BuyerLeadID: firstString(fields, "leadId", "lead_id", "confirmation", "confirmation_id"),
			RawStatus:   rawStatus,
		}
	}

	reason := extractReason(fields)
	return Rejected{
		Reason:     reason,
		LostReason: transaction.MapRejectionText(reason),
		RawStatus:  rawStatus,
	}
}

func decodeBody(body []byte) map[string]interface{} {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil
	}
	return fields
}

func isAccepted(fields map[string]interface{}) bool {
	if boolField(fields, "accepted") || boolField(fields, "success") {
		return true
	}

	for _, key := range []string{"status", "result"} {
		if s, ok := fields[key].(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "accepted", "success":
				return true
			}
		}
	}

	for _, key := range []string{"leadId", "lead_id", "confirmation"} {
		if v, ok := fields[key]; ok && stringify(v) != "" {
			return true
		}
	}

	return false
}

func boolField(fields map[string]interface{}, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// extractBid probes for a bid amount. Negative amounts clamp to zero;
// unparseable amounts read as no bid.
func extractBid(fields map[string]interface{}, bidField string) (values.Money, bool) {
	probes := bidFieldProbes
	if bidField != "" {
		probes = append([]string{bidField}, bidFieldProbes...)
	}

	for _, key := range probes {
		v, ok := fields[key]
		if !ok {
			continue
		}

		switch amount := v.(type) {
		case float64:
			if amount < 0 {
				return values.ZeroMoney(), true
			}
			if m, err := values.NewMoneyFromFloat(amount); err == nil {
				return m, true
			}
		case string:
			if m, err := values.NewMoneyFromString(amount); err == nil {
				return m, true
			}
		}
	}

	return values.ZeroMoney(), false
}

func extractReason(fields map[string]interface{}) string {
	for _, key := range reasonFields {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func extractStatus(fields map[string]interface{}) string {
	if s, ok := fields["status"].(string); ok {
		return s
	}
	if s, ok := fields["result"].(string); ok {
		return s
	}
	return ""
}

func firstString(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func truncateRaw(body []byte) string {
	if len(body) <= maxRawEcho {
		return string(body)
	}
	return string(body[:maxRawEcho])
}
