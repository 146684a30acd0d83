// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/shineum/emailer-lite/internal/email"
)

// authErrorCodes are the SES API error codes caused by bad or insufficient
// credentials.
var authErrorCodes = map[string]bool{
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
}

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESProvider sends emails via the AWS SES v2 API.
type SESProvider struct {
	client SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration. Static keys
// are used when both are set; otherwise the default credential chain applies.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESProvider{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(client SendEmailAPI) *SESProvider {
	return &SESProvider{client: client}
}

// Send delivers the rendered message as a raw SES email. The destination
// lists every envelope recipient, so Bcc addresses receive the message
// without appearing in its headers.
func (s *SESProvider) Send(ctx context.Context, env *email.Envelope) error {
	if len(env.Recipients()) == 0 {
		return email.ErrNoRecipients
	}
	if len(env.Raw) == 0 {
		return fmt.Errorf("%w: message has no rendered content", email.ErrTransport)
	}

	out, err := s.client.SendEmail(ctx, buildRawInput(env))
	if err != nil {
		return classify(err)
	}

	slog.Debug("SES accepted message",
		"ses_message_id", aws.ToString(out.MessageId),
		"message_id", env.MessageID,
	)
	return nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// buildRawInput creates a SES SendEmailInput carrying the rendered message.
func buildRawInput(env *email.Envelope) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.From),
		Destination: &types.Destination{
			ToAddresses:  env.To,
			CcAddresses:  env.Cc,
			BccAddresses: env.Bcc,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: env.Raw,
			},
		},
	}
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authErrorCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: SES rejected the AWS credentials: %w", email.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: SES API request failed: %w", email.ErrTransport, err)
}
