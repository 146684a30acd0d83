package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"

	"github.com/shineum/emailer-lite/internal/email"
	"github.com/shineum/emailer-lite/internal/provider"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func testEnvelope() *email.Envelope {
	return &email.Envelope{
		From:      "sender@example.com",
		To:        []string{"to1@example.com", "to2@example.com"},
		Cc:        []string{"cc@example.com"},
		Bcc:       []string{"bcc@example.com"},
		Subject:   "Test Subject",
		MessageID: "<id@example.com>",
		Raw:       []byte("From: sender@example.com\r\nSubject: Test Subject\r\n\r\nHello"),
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient(&mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_RawMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)
	env := testEnvelope()

	if err := p.Send(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if got := aws.ToString(input.FromEmailAddress); got != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "sender@example.com")
	}
	if input.Content.Simple != nil {
		t.Error("expected raw content, got simple content")
	}
	if input.Content.Raw == nil {
		t.Fatal("expected raw content, got nil")
	}
	if string(input.Content.Raw.Data) != string(env.Raw) {
		t.Errorf("raw data: got %q, want %q", input.Content.Raw.Data, env.Raw)
	}
}

func TestSend_DestinationCarriesAllRecipients(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)

	if err := p.Send(context.Background(), testEnvelope()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest := mock.lastInput.Destination
	if len(dest.ToAddresses) != 2 {
		t.Errorf("ToAddresses: got %d, want 2", len(dest.ToAddresses))
	}
	if len(dest.CcAddresses) != 1 || dest.CcAddresses[0] != "cc@example.com" {
		t.Errorf("CcAddresses: got %v, want [cc@example.com]", dest.CcAddresses)
	}
	if len(dest.BccAddresses) != 1 || dest.BccAddresses[0] != "bcc@example.com" {
		t.Errorf("BccAddresses: got %v, want [bcc@example.com]", dest.BccAddresses)
	}
}

func TestSend_NoRetryOnError(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(_ context.Context, _ *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	p := NewWithClient(mock)

	err := p.Send(context.Background(), testEnvelope())
	if !errors.Is(err, email.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestSend_AccessDenied(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(_ context.Context, _ *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"}
		},
	}

	err := NewWithClient(mock).Send(context.Background(), testEnvelope())
	if !errors.Is(err, email.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestSend_NoRecipients(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	err := NewWithClient(mock).Send(context.Background(), &email.Envelope{From: "sender@example.com", Raw: []byte("x")})
	if !errors.Is(err, email.ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if mock.callCount != 0 {
		t.Errorf("call count: got %d, want 0", mock.callCount)
	}
}

func TestSend_EmptyRawMessage(t *testing.T) {
	t.Parallel()

	env := testEnvelope()
	env.Raw = nil

	if err := NewWithClient(&mockSESClient{}).Send(context.Background(), env); !errors.Is(err, email.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestProviderInterface(t *testing.T) {
	t.Parallel()
	var _ provider.Provider = (*SESProvider)(nil)
}
