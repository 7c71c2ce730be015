package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
	"github.com/homereach/lead-exchange-backend/internal/service/notification"
)

// sesAPI is the slice of the SES v2 client this sender uses. Tests
// substitute a recording implementation.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers contractor lead notifications through AWS SES v2.
// Explicit access keys in the config take precedence; otherwise
// credentials come from the default AWS chain (environment, shared
// config, instance role).
type SESSender struct {
	api    sesAPI
	cfg    *config.EmailConfig
	logger *zap.Logger
}

// NewSESSender builds the sender and the underlying SES client
func NewSESSender(ctx context.Context, cfg *config.EmailConfig, logger *zap.Logger) (*SESSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("email config cannot be nil")
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("email sender address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &SESSender{
		api:    sesv2.NewFromConfig(awsCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// SendEmail sends one rendered notification as a simple-content
// message tagged for deliverability reporting
func (s *SESSender) SendEmail(ctx context.Context, msg notification.EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("email message has no recipient")
	}

	body := &types.Body{}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.cfg.Sender),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("message_type"), Value: aws.String("lead-notification")},
		},
	}

	if s.cfg.ReplyTo != "" {
		input.ReplyToAddresses = []string{s.cfg.ReplyTo}
	}
	if s.cfg.ConfigSet != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigSet)
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via ses: %w", err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	s.logger.Debug("notification email sent",
		zap.String("to", msg.To),
		zap.String("message_id", messageID),
	)
	return nil
}
