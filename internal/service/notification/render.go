package notification

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// contactFormKeys are the raw form fields that render under Contact
// Information instead of the project details
var contactFormKeys = map[string]bool{
	"firstName":      true,
	"first_name":     true,
	"lastName":       true,
	"last_name":      true,
	"email":          true,
	"phone":          true,
	"phoneNumber":    true,
	"phone_number":   true,
	"address":        true,
	"street_address": true,
}

func emailSubject(l *lead.Lead) string {
	return fmt.Sprintf("New %s Lead - %s", humanize(l.ServiceTypeID), l.ZipCode)
}

type renderedField struct {
	label string
	value string
}

// buildEmail renders the plain-text and HTML bodies for a delivered
// lead: contact block first, remaining form fields as project details,
// the contractor's price last.
func buildEmail(l *lead.Lead, price values.Money) (string, string) {
	heading := emailSubject(l)
	contact := contactFields(l)
	details := detailFields(l)

	var text strings.Builder
	text.WriteString(heading)
	text.WriteString("\n\n")
	if len(contact) > 0 {
		text.WriteString("Contact Information\n")
		for _, f := range contact {
			fmt.Fprintf(&text, "  %s: %s\n", f.label, f.value)
		}
		text.WriteString("\n")
	}
	if len(details) > 0 {
		text.WriteString("Project Details\n")
		for _, f := range details {
			fmt.Fprintf(&text, "  %s: %s\n", f.label, f.value)
		}
		text.WriteString("\n")
	}
	fmt.Fprintf(&text, "Your price: $%s\n", price.String())

	var page strings.Builder
	page.WriteString("<html><body>")
	fmt.Fprintf(&page, "<h2>%s</h2>", html.EscapeString(heading))
	if len(contact) > 0 {
		page.WriteString("<h3>Contact Information</h3><ul>")
		for _, f := range contact {
			fmt.Fprintf(&page, "<li><strong>%s:</strong> %s</li>",
				html.EscapeString(f.label), html.EscapeString(f.value))
		}
		page.WriteString("</ul>")
	}
	if len(details) > 0 {
		page.WriteString("<h3>Project Details</h3><ul>")
		for _, f := range details {
			fmt.Fprintf(&page, "<li><strong>%s:</strong> %s</li>",
				html.EscapeString(f.label), html.EscapeString(f.value))
		}
		page.WriteString("</ul>")
	}
	fmt.Fprintf(&page, "<p><strong>Your price:</strong> $%s</p>", price.String())
	page.WriteString("</body></html>")

	return text.String(), page.String()
}

// contactFields returns the contact block in canonical order
func contactFields(l *lead.Lead) []renderedField {
	var out []renderedField

	if name := strings.TrimSpace(l.Contact.FirstName + " " + l.Contact.LastName); name != "" {
		out = append(out, renderedField{"Name", name})
	}
	if p := l.Contact.Phone.E164(); p != "" {
		out = append(out, renderedField{"Phone", p})
	}
	if e := l.Contact.Email.String(); e != "" {
		out = append(out, renderedField{"Email", e})
	}
	if addr := addressOf(l); addr != "" {
		out = append(out, renderedField{"Address", addr})
	}
	return out
}

func addressOf(l *lead.Lead) string {
	for _, key := range []string{"address", "street_address"} {
		if v, ok := l.Data[key]; ok {
			if s := displayValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// detailFields returns the non-contact form fields with humanized
// labels, sorted for stable rendering
func detailFields(l *lead.Lead) []renderedField {
	var out []renderedField
	for key, v := range l.Data {
		if contactFormKeys[key] {
			continue
		}
		s := displayValue(v)
		if s == "" {
			continue
		}
		out = append(out, renderedField{humanize(key), s})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

func displayValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// humanize turns a camelCase or snake_case form key into a Title Case
// label: projectType and project_type both become "Project Type"
func humanize(key string) string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range key {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			current.WriteRune(unicode.ToLower(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()

	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

type webhookEvent struct {
	Event      string            `json:"event"`
	Timestamp  string            `json:"timestamp"`
	Lead       webhookLead       `json:"lead"`
	Contractor webhookContractor `json:"contractor"`
}

type webhookLead struct {
	ID          string            `json:"id"`
	ServiceType string            `json:"service_type"`
	ZipCode     string            `json:"zip_code"`
	Price       string            `json:"price"`
	FormData    map[string]string `json:"form_data"`
}

type webhookContractor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// buildWebhookEvent serializes the new_lead event. Form data merges the
// raw capture fields with the structured contact so endpoint consumers
// see one flat map.
func buildWebhookEvent(l *lead.Lead, contractor *buyer.Buyer, price values.Money, now time.Time) ([]byte, error) {
	form := make(map[string]string, len(l.Data)+4)
	for key, v := range l.Data {
		if s := displayValue(v); s != "" {
			form[key] = s
		}
	}
	if l.Contact.FirstName != "" {
		form["firstName"] = l.Contact.FirstName
	}
	if l.Contact.LastName != "" {
		form["lastName"] = l.Contact.LastName
	}
	if e := l.Contact.Email.String(); e != "" {
		form["email"] = e
	}
	if p := l.Contact.Phone.E164(); p != "" {
		form["phone"] = p
	}

	return json.Marshal(webhookEvent{
		Event:     "new_lead",
		Timestamp: now.UTC().Format(time.RFC3339),
		Lead: webhookLead{
			ID:          l.ID,
			ServiceType: l.ServiceTypeID,
			ZipCode:     l.ZipCode,
			Price:       price.String(),
			FormData:    form,
		},
		Contractor: webhookContractor{
			ID:   contractor.ID.String(),
			Name: contractor.Name,
		},
	})
}

// dashboardMessage is the one-line summary shown in the contractor's
// notification feed
func dashboardMessage(l *lead.Lead, price values.Money) string {
	return fmt.Sprintf("New %s lead in %s. Your price: $%s.",
		humanize(l.ServiceTypeID), l.ZipCode, price.String())
}
