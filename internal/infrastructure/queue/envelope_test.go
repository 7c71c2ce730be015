package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
)

func intakeEnvelope() *Envelope {
	return &Envelope{
		LeadID:            "lead-intake-001",
		ServiceTypeID:     "roofing",
		ZipCode:           "94110",
		State:             "CA",
		City:              "San Francisco",
		Source:            "homereach-web",
		FirstName:         "Dana",
		LastName:          "Whitfield",
		Email:             "dana.whitfield@example.com",
		Phone:             "+14155552671",
		OwnsHome:          true,
		Timeframe:         "1-3 months",
		TrustedFormCertID: "cert-abc123",
		TCPAConsent:       true,
		FormData: map[string]interface{}{
			"roof_age":  "12",
			"roof_type": "shingle",
		},
	}
}

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{
		"leadId": "lead-intake-001",
		"serviceTypeId": "roofing",
		"zipCode": "94110",
		"firstName": "Dana",
		"lastName": "Whitfield",
		"email": "dana.whitfield@example.com",
		"phone": "+14155552671",
		"ownsHome": true,
		"tcpaConsent": true,
		"formData": {"roof_age": "12"}
	}`)

	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)

	assert.Equal(t, "lead-intake-001", env.LeadID)
	assert.Equal(t, "roofing", env.ServiceTypeID)
	assert.Equal(t, "94110", env.ZipCode)
	assert.Equal(t, "Dana", env.FirstName)
	assert.True(t, env.OwnsHome)
	assert.True(t, env.TCPAConsent)
	assert.Equal(t, "12", env.FormData["roof_age"])
	assert.Zero(t, env.Attempts)
}

func TestDecodeEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not-json{{"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode intake envelope")
}

func TestEnvelope_ToLead(t *testing.T) {
	env := intakeEnvelope()

	l, err := env.ToLead()
	require.NoError(t, err)

	assert.Equal(t, "lead-intake-001", l.ID)
	assert.Equal(t, "roofing", l.ServiceTypeID)
	assert.Equal(t, "94110", l.ZipCode)
	assert.Equal(t, "CA", l.State)
	assert.Equal(t, "San Francisco", l.City)
	assert.Equal(t, "homereach-web", l.Source)
	assert.Equal(t, "Dana Whitfield", l.Contact.FullName())
	assert.Equal(t, "dana.whitfield@example.com", l.Contact.Email.String())
	assert.Equal(t, "+14155552671", l.Contact.Phone.E164())
	assert.True(t, l.OwnsHome)
	assert.Equal(t, "1-3 months", l.Timeframe)
	assert.Equal(t, "cert-abc123", l.TrustedFormCertID)
	assert.True(t, l.TCPAConsent)
	assert.Equal(t, "shingle", l.Data["roof_type"])
	assert.Equal(t, lead.StatusPending, l.Status)
	assert.False(t, l.CreatedAt.IsZero())
}

func TestEnvelope_ToLead_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Envelope)
		wantErr string
	}{
		{
			name:    "missing lead id",
			mutate:  func(e *Envelope) { e.LeadID = "" },
			wantErr: "lead ID cannot be empty",
		},
		{
			name:    "bad service type slug",
			mutate:  func(e *Envelope) { e.ServiceTypeID = "Roofing Repair!" },
			wantErr: "invalid service type",
		},
		{
			name:    "bad zip code",
			mutate:  func(e *Envelope) { e.ZipCode = "ABCDE" },
			wantErr: "invalid zip code",
		},
		{
			name:    "missing email",
			mutate:  func(e *Envelope) { e.Email = "" },
			wantErr: "invalid lead contact",
		},
		{
			name:    "unusable phone",
			mutate:  func(e *Envelope) { e.Phone = "call me" },
			wantErr: "invalid lead contact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := intakeEnvelope()
			tt.mutate(env)

			_, err := env.ToLead()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
