package buyerapi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
)

// Transformer projects lead data into per-buyer payloads. Each buyer
// names its fields differently; field mappings rename, remap values,
// and run an ordered transform chain to produce what the buyer's API
// expects.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

var transformPattern = regexp.MustCompile(`^(\w+)(?:\((.*)\))?$`)

const trustedFormCertBase = "https://cert.trustedform.com/"

// Transform builds the outbound payload for one buyer. Static template
// fields merge first, mapped lead fields second, compliance fields
// last when requested. Empty final values are omitted.
func (t *Transformer) Transform(l *lead.Lead, config *buyer.ServiceConfig, tmpl buyer.Template, includeCompliance bool) (map[string]string, error) {
	payload := make(map[string]string, len(tmpl.StaticFields)+len(config.FieldMappings)+3)

	for field, value := range tmpl.StaticFields {
		payload[field] = value
	}

	for _, mapping := range config.FieldMappings {
		raw, _ := resolveSourceField(l, mapping.SourceField)
		value := stringify(raw)

		if mapping.ValueMap != nil {
			if mapped, ok := mapping.ValueMap[value]; ok {
				value = mapped
			}
		}

		var err error
		for _, name := range mapping.Transforms {
			value, err = applyTransform(name, value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", mapping.TargetField, err)
			}
		}

		if value == "" {
			continue
		}
		payload[mapping.TargetField] = value
	}

	if includeCompliance {
		if l.TrustedFormCertID != "" {
			payload["trustedFormCertUrl"] = trustedFormCertURL(l.TrustedFormCertID)
		}
		if l.JornayaLeadID != "" {
			payload["jornayaLeadId"] = l.JornayaLeadID
		}
		if l.TCPAConsent {
			payload["tcpaConsent"] = "yes"
		} else {
			payload["tcpaConsent"] = "no"
		}
	}

	return payload, nil
}

// resolveSourceField looks up a source field in the raw form data
// first, then falls back to the lead's structured attributes
func resolveSourceField(l *lead.Lead, name string) (interface{}, bool) {
	if l.Data != nil {
		if v, ok := l.Data[name]; ok {
			return v, true
		}
	}

	switch name {
	case "leadId", "lead_id":
		return l.ID, true
	case "serviceType", "service_type":
		return l.ServiceTypeID, true
	case "zipCode", "zip_code", "zip":
		return l.ZipCode, true
	case "state":
		return l.State, true
	case "city":
		return l.City, true
	case "firstName", "first_name":
		return l.Contact.FirstName, true
	case "lastName", "last_name":
		return l.Contact.LastName, true
	case "email":
		return l.Contact.Email.String(), true
	case "phone", "phoneNumber", "phone_number":
		return l.Contact.Phone.E164(), true
	case "ownsHome", "owns_home":
		return l.OwnsHome, true
	case "timeframe":
		return l.Timeframe, true
	}

	return nil, false
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func applyTransform(name, value string) (string, error) {
	match := transformPattern.FindStringSubmatch(name)
	if match == nil {
		return "", fmt.Errorf("malformed transform %q", name)
	}

	fn, arg := match[1], match[2]
	switch fn {
	case "digitsOnly":
		var b strings.Builder
		for _, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String(), nil

	case "booleanYesNo":
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "y", "1":
			return "yes", nil
		default:
			return "no", nil
		}

	case "upperCase":
		return strings.ToUpper(value), nil

	case "lowerCase":
		return strings.ToLower(value), nil

	case "titleCase":
		return titleCase(value), nil

	case "trim":
		return strings.TrimSpace(value), nil

	case "truncate":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return "", fmt.Errorf("truncate needs a non-negative length, got %q", arg)
		}
		runes := []rune(value)
		if len(runes) <= n {
			return value, nil
		}
		return string(runes[:n]), nil

	case "defaultIfEmpty":
		if value == "" {
			return arg, nil
		}
		return value, nil

	default:
		return "", fmt.Errorf("unknown transform %q", fn)
	}
}

func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	startOfWord := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func trustedFormCertURL(certID string) string {
	if strings.HasPrefix(certID, "http://") || strings.HasPrefix(certID, "https://") {
		return certID
	}
	return trustedFormCertBase + certID
}
