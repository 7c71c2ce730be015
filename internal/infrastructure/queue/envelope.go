package queue

import (
	"encoding/json"
	"fmt"

	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
)

// Envelope is the intake message the capture side pushes onto the
// pending list. Field names follow the capture form's JSON contract.
// Attempts is consumer bookkeeping; producers leave it zero.
type Envelope struct {
	LeadID            string                 `json:"leadId"`
	ServiceTypeID     string                 `json:"serviceTypeId"`
	ZipCode           string                 `json:"zipCode"`
	State             string                 `json:"state,omitempty"`
	City              string                 `json:"city,omitempty"`
	Source            string                 `json:"source,omitempty"`
	FirstName         string                 `json:"firstName"`
	LastName          string                 `json:"lastName"`
	Email             string                 `json:"email"`
	Phone             string                 `json:"phone"`
	OwnsHome          bool                   `json:"ownsHome"`
	Timeframe         string                 `json:"timeframe,omitempty"`
	TrustedFormCertID string                 `json:"trustedFormCertId,omitempty"`
	JornayaLeadID     string                 `json:"jornayaLeadId,omitempty"`
	TCPAConsent       bool                   `json:"tcpaConsent"`
	FormData          map[string]interface{} `json:"formData,omitempty"`
	Attempts          int                    `json:"attempts,omitempty"`
}

// DecodeEnvelope parses a raw queue payload
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode intake envelope: %w", err)
	}
	return &env, nil
}

// ToLead builds the domain lead from the envelope. Validation failures
// are permanent; the message cannot succeed on retry.
func (e *Envelope) ToLead() (*lead.Lead, error) {
	contact, err := lead.NewContact(e.FirstName, e.LastName, e.Email, e.Phone)
	if err != nil {
		return nil, fmt.Errorf("invalid lead contact: %w", err)
	}

	l, err := lead.NewLead(e.LeadID, e.ServiceTypeID, e.ZipCode, contact, e.FormData)
	if err != nil {
		return nil, err
	}

	l.State = e.State
	l.City = e.City
	l.Source = e.Source
	l.OwnsHome = e.OwnsHome
	l.Timeframe = e.Timeframe
	l.TrustedFormCertID = e.TrustedFormCertID
	l.JornayaLeadID = e.JornayaLeadID
	l.TCPAConsent = e.TCPAConsent

	return l, nil
}

// Encode marshals the envelope for requeue or dead-letter pushes
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intake envelope: %w", err)
	}
	return data, nil
}
