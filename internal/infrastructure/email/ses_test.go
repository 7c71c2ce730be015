package email

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
	"github.com/homereach/lead-exchange-backend/internal/service/notification"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-0001")}, nil
}

func newTestSender(t *testing.T, fake *fakeSES, cfg *config.EmailConfig) *SESSender {
	t.Helper()
	return &SESSender{api: fake, cfg: cfg, logger: zaptest.NewLogger(t)}
}

func leadEmail() notification.EmailMessage {
	return notification.EmailMessage{
		To:       "dispatch@bayarearoofing.example.com",
		Subject:  "New Roofing Lead - 94110",
		TextBody: "Dana Whitfield is looking for roofing work in 94110.",
		HTMLBody: "<p>Dana Whitfield is looking for roofing work in 94110.</p>",
	}
}

func TestNewSESSender_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("nil config", func(t *testing.T) {
		_, err := NewSESSender(context.Background(), nil, logger)
		require.Error(t, err)
	})

	t.Run("missing sender address", func(t *testing.T) {
		_, err := NewSESSender(context.Background(), &config.EmailConfig{Region: "us-east-1"}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sender address")
	})

	t.Run("explicit access keys", func(t *testing.T) {
		sender, err := NewSESSender(context.Background(), &config.EmailConfig{
			Region:          "us-west-2",
			Sender:          "leads@homereach.example.com",
			AccessKeyID:     "AKIAEXAMPLE",
			SecretAccessKey: "secret",
		}, logger)
		require.NoError(t, err)
		require.NotNil(t, sender)
	})
}

func TestSESSender_SendEmail(t *testing.T) {
	fake := &fakeSES{}
	sender := newTestSender(t, fake, &config.EmailConfig{
		Region:    "us-east-1",
		Sender:    "leads@homereach.example.com",
		ReplyTo:   "support@homereach.example.com",
		ConfigSet: "lead-notifications",
	})

	err := sender.SendEmail(context.Background(), leadEmail())
	require.NoError(t, err)

	in := fake.input
	require.NotNil(t, in)
	assert.Equal(t, "leads@homereach.example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"dispatch@bayarearoofing.example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"support@homereach.example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "lead-notifications", aws.ToString(in.ConfigurationSetName))

	simple := in.Content.Simple
	require.NotNil(t, simple)
	assert.Equal(t, "New Roofing Lead - 94110", aws.ToString(simple.Subject.Data))
	assert.Equal(t, "UTF-8", aws.ToString(simple.Subject.Charset))
	assert.Contains(t, aws.ToString(simple.Body.Html.Data), "<p>Dana Whitfield")
	assert.Contains(t, aws.ToString(simple.Body.Text.Data), "roofing work in 94110")

	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, "message_type", aws.ToString(in.EmailTags[0].Name))
	assert.Equal(t, "lead-notification", aws.ToString(in.EmailTags[0].Value))
}

func TestSESSender_SendEmail_MinimalConfig(t *testing.T) {
	fake := &fakeSES{}
	sender := newTestSender(t, fake, &config.EmailConfig{
		Region: "us-east-1",
		Sender: "leads@homereach.example.com",
	})

	msg := leadEmail()
	msg.HTMLBody = ""
	require.NoError(t, sender.SendEmail(context.Background(), msg))

	in := fake.input
	require.NotNil(t, in)
	assert.Empty(t, in.ReplyToAddresses)
	assert.Nil(t, in.ConfigurationSetName)
	assert.Nil(t, in.Content.Simple.Body.Html, "text-only message carries no html part")
	require.NotNil(t, in.Content.Simple.Body.Text)
}

func TestSESSender_SendEmail_Failures(t *testing.T) {
	t.Run("ses rejects", func(t *testing.T) {
		fake := &fakeSES{err: errors.New("MessageRejected: address not verified")}
		sender := newTestSender(t, fake, &config.EmailConfig{Sender: "leads@homereach.example.com"})

		err := sender.SendEmail(context.Background(), leadEmail())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send email via ses")
	})

	t.Run("missing recipient", func(t *testing.T) {
		fake := &fakeSES{}
		sender := newTestSender(t, fake, &config.EmailConfig{Sender: "leads@homereach.example.com"})

		msg := leadEmail()
		msg.To = ""
		err := sender.SendEmail(context.Background(), msg)
		require.Error(t, err)
		assert.Nil(t, fake.input, "rejected before reaching the API")
	})
}
