package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/emailer-lite/internal/email"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	graphScope      = "https://graph.microsoft.com/.default"
	requestTimeout  = 30 * time.Second
)

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// GraphProvider sends emails via the Microsoft Graph API using OAuth2
// client credentials authentication. The sending mailbox is the envelope
// From address.
type GraphProvider struct {
	graphURL   string
	httpClient *http.Client
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	return newWithOverrides(cfg, defaultGraphURL, tokenURL, &http.Client{Timeout: requestTimeout})
}

// newWithOverrides creates a GraphProvider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg GraphProviderConfig, graphURL, tokenURL string, base *http.Client) *GraphProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// Token requests use base; the returned client caches and refreshes
	// the token.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout

	return &GraphProvider{
		graphURL:   graphURL,
		httpClient: client,
	}
}

// Send delivers the envelope with a single sendMail request.
func (g *GraphProvider) Send(ctx context.Context, env *email.Envelope) error {
	if len(env.Recipients()) == 0 {
		return email.ErrNoRecipients
	}

	bodyJSON, err := json.Marshal(buildSendMailRequest(env))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", g.graphURL, url.PathEscape(env.From))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: failed to acquire Graph access token: %w", email.ErrAuthentication, err)
		}
		return fmt.Errorf("%w: Graph API request failed: %w", email.ErrTransport, err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		slog.Debug("Graph API accepted message", "message_id", env.MessageID)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := string(body)
	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		message = graphErrResp.Error.Message
	}

	return classifyError(resp.StatusCode, message)
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "msgraph"
}

// sendError is a non-success reply from the Graph API.
type sendError struct {
	message    string
	statusCode int
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classifyError maps an HTTP error response to an email error sentinel.
func classifyError(statusCode int, message string) error {
	err := &sendError{message: message, statusCode: statusCode}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", email.ErrAuthentication, err)
	default:
		return fmt.Errorf("%w: %w", email.ErrTransport, err)
	}
}
