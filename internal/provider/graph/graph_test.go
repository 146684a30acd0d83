package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shineum/emailer-lite/internal/email"
)

func TestBuildSendMailRequest_BasicEmail(t *testing.T) {
	t.Parallel()

	env := &email.Envelope{
		From:    "sender@example.com",
		To:      []string{"alice@example.com", "bob@example.com"},
		Subject: "Test Subject",
		Body:    "Hello, World!",
	}

	req := buildSendMailRequest(env)

	if req.Message.Subject != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", req.Message.Subject, "Test Subject")
	}
	if req.Message.Body.ContentType != "text" {
		t.Errorf("Body.ContentType: got %q, want %q", req.Message.Body.ContentType, "text")
	}
	if req.Message.Body.Content != "Hello, World!" {
		t.Errorf("Body.Content: got %q, want %q", req.Message.Body.Content, "Hello, World!")
	}
	if len(req.Message.ToRecipients) != 2 {
		t.Fatalf("ToRecipients count: got %d, want 2", len(req.Message.ToRecipients))
	}
	if req.Message.ToRecipients[0].EmailAddress.Address != "alice@example.com" {
		t.Errorf("ToRecipients[0]: got %q, want %q", req.Message.ToRecipients[0].EmailAddress.Address, "alice@example.com")
	}
	if req.Message.ToRecipients[1].EmailAddress.Address != "bob@example.com" {
		t.Errorf("ToRecipients[1]: got %q, want %q", req.Message.ToRecipients[1].EmailAddress.Address, "bob@example.com")
	}
	if len(req.Message.CcRecipients) != 0 {
		t.Errorf("CcRecipients: got %d, want 0", len(req.Message.CcRecipients))
	}
	if len(req.Message.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(req.Message.Attachments))
	}
	if !req.SaveToSentItems {
		t.Error("SaveToSentItems: got false, want true")
	}
}

func TestBuildSendMailRequest_HTMLBody(t *testing.T) {
	t.Parallel()

	req := buildSendMailRequest(&email.Envelope{
		To:      []string{"user@example.com"},
		Subject: "HTML Email",
		Body:    "<p>HTML content</p>",
		HTML:    true,
	})

	if req.Message.Body.ContentType != "html" {
		t.Errorf("Body.ContentType: got %q, want %q", req.Message.Body.ContentType, "html")
	}
	if req.Message.Body.Content != "<p>HTML content</p>" {
		t.Errorf("Body.Content: got %q, want %q", req.Message.Body.Content, "<p>HTML content</p>")
	}
}

func TestBuildSendMailRequest_WithAttachments(t *testing.T) {
	t.Parallel()

	req := buildSendMailRequest(&email.Envelope{
		To:      []string{"user@example.com"},
		Subject: "With Attachment",
		Body:    "See attached",
		Attachments: []email.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf-bytes")},
		},
	})

	if len(req.Message.Attachments) != 1 {
		t.Fatalf("Attachments count: got %d, want 1", len(req.Message.Attachments))
	}
	att := req.Message.Attachments[0]
	if att.ODataType != "#microsoft.graph.fileAttachment" {
		t.Errorf("ODataType: got %q", att.ODataType)
	}
	if att.Name != "report.pdf" {
		t.Errorf("Name: got %q, want %q", att.Name, "report.pdf")
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType: got %q, want %q", att.ContentType, "application/pdf")
	}
	want := base64.StdEncoding.EncodeToString([]byte("pdf-bytes"))
	if att.ContentBytes != want {
		t.Errorf("ContentBytes: got %q, want %q", att.ContentBytes, want)
	}
}

func TestBuildSendMailRequest_CcAndBcc(t *testing.T) {
	t.Parallel()

	req := buildSendMailRequest(&email.Envelope{
		To:  []string{"to@example.com"},
		Cc:  []string{"cc@example.com"},
		Bcc: []string{"hidden@example.com"},
	})

	if len(req.Message.CcRecipients) != 1 || req.Message.CcRecipients[0].EmailAddress.Address != "cc@example.com" {
		t.Errorf("CcRecipients: got %+v", req.Message.CcRecipients)
	}
	if len(req.Message.BccRecipients) != 1 || req.Message.BccRecipients[0].EmailAddress.Address != "hidden@example.com" {
		t.Errorf("BccRecipients: got %+v", req.Message.BccRecipients)
	}
	for _, r := range append(req.Message.ToRecipients, req.Message.CcRecipients...) {
		if r.EmailAddress.Address == "hidden@example.com" {
			t.Error("Bcc address leaked into visible recipients")
		}
	}
}

func TestBuildSendMailRequest_JSONOmitsEmptyLists(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(buildSendMailRequest(&email.Envelope{
		To:      []string{"to@example.com"},
		Subject: "Test",
		Body:    "Body",
	}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	s := string(data)
	for _, key := range []string{"ccRecipients", "bccRecipients", "attachments"} {
		if strings.Contains(s, key) {
			t.Errorf("expected %q to be omitted, got %s", key, s)
		}
	}
	if !strings.Contains(s, `"toRecipients"`) {
		t.Errorf("expected toRecipients in %s", s)
	}
}

func TestGraphProvider_Name(t *testing.T) {
	t.Parallel()

	p := &GraphProvider{}
	if p.Name() != "msgraph" {
		t.Errorf("Name: got %q, want %q", p.Name(), "msgraph")
	}
}

// newTestServer serves the token endpoint at /token and hands every other
// request to graph.
func newTestServer(t *testing.T, tokenStatus int, graph http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type: got %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("scope") != graphScope {
			t.Errorf("scope: got %q, want %q", r.PostForm.Get("scope"), graphScope)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tokenStatus)
		if tokenStatus != http.StatusOK {
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/", graph)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newTestProvider(srv *httptest.Server) *GraphProvider {
	return newWithOverrides(
		GraphProviderConfig{TenantID: "test-tenant", ClientID: "test-client", ClientSecret: "test-secret"},
		srv.URL, srv.URL+"/token", srv.Client(),
	)
}

func TestGraphProvider_SendSuccess(t *testing.T) {
	t.Parallel()

	var graphCalls atomic.Int32
	srv, tokenCalls := newTestServer(t, http.StatusOK, func(w http.ResponseWriter, r *http.Request) {
		graphCalls.Add(1)
		if r.URL.Path != "/users/sender@example.com/sendMail" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization header: got %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type header: got %q, want %q", r.Header.Get("Content-Type"), "application/json")
		}

		var body sendMailRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body.Message.Subject != "Test" {
			t.Errorf("Subject in body: got %q, want %q", body.Message.Subject, "Test")
		}
		if len(body.Message.BccRecipients) != 1 {
			t.Errorf("BccRecipients: got %d, want 1", len(body.Message.BccRecipients))
		}

		w.WriteHeader(http.StatusAccepted)
	})

	p := newTestProvider(srv)
	env := &email.Envelope{
		From:    "sender@example.com",
		To:      []string{"user@example.com"},
		Bcc:     []string{"hidden@example.com"},
		Subject: "Test",
		Body:    "Body",
	}

	for i := 0; i < 2; i++ {
		if err := p.Send(context.Background(), env); err != nil {
			t.Fatalf("send %d: unexpected error: %v", i, err)
		}
	}

	if graphCalls.Load() != 2 {
		t.Errorf("graph call count: got %d, want 2", graphCalls.Load())
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token call count: got %d, want 1 (token should be reused)", tokenCalls.Load())
	}
}

func TestGraphProvider_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		tokenStatus int
		graphStatus int
		wantErr     error
		wantMessage string
	}{
		{name: "token rejected", tokenStatus: http.StatusUnauthorized, graphStatus: http.StatusAccepted, wantErr: email.ErrAuthentication},
		{name: "401", tokenStatus: http.StatusOK, graphStatus: http.StatusUnauthorized, wantErr: email.ErrAuthentication, wantMessage: "graph says no"},
		{name: "403", tokenStatus: http.StatusOK, graphStatus: http.StatusForbidden, wantErr: email.ErrAuthentication, wantMessage: "graph says no"},
		{name: "400", tokenStatus: http.StatusOK, graphStatus: http.StatusBadRequest, wantErr: email.ErrTransport, wantMessage: "graph says no"},
		{name: "503", tokenStatus: http.StatusOK, graphStatus: http.StatusServiceUnavailable, wantErr: email.ErrTransport, wantMessage: "graph says no"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var graphCalls atomic.Int32
			srv, _ := newTestServer(t, tt.tokenStatus, func(w http.ResponseWriter, r *http.Request) {
				graphCalls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.graphStatus)
				json.NewEncoder(w).Encode(graphErrorResponse{
					Error: graphError{Code: "Error", Message: "graph says no"},
				})
			})

			err := newTestProvider(srv).Send(context.Background(), &email.Envelope{
				From: "s@example.com",
				To:   []string{"user@example.com"},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if tt.wantMessage != "" && !strings.Contains(err.Error(), tt.wantMessage) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMessage)
			}
			if graphCalls.Load() > 1 {
				t.Errorf("graph call count: got %d, want at most 1", graphCalls.Load())
			}
		})
	}
}

func TestGraphProvider_NoRecipients(t *testing.T) {
	t.Parallel()

	srv, tokenCalls := newTestServer(t, http.StatusOK, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected Graph request")
	})

	err := newTestProvider(srv).Send(context.Background(), &email.Envelope{From: "s@example.com"})
	if !errors.Is(err, email.ErrNoRecipients) {
		t.Fatalf("error: got %v, want ErrNoRecipients", err)
	}
	if tokenCalls.Load() != 0 {
		t.Errorf("token call count: got %d, want 0", tokenCalls.Load())
	}
}

func TestGraphProvider_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, http.StatusOK, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestProvider(srv).Send(ctx, &email.Envelope{
		From: "s@example.com",
		To:   []string{"user@example.com"},
	})
	if err == nil {
		t.Error("expected error for cancelled context, got nil")
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		statusCode int
		want       error
	}{
		{statusCode: 400, want: email.ErrTransport},
		{statusCode: 401, want: email.ErrAuthentication},
		{statusCode: 403, want: email.ErrAuthentication},
		{statusCode: 429, want: email.ErrTransport},
		{statusCode: 500, want: email.ErrTransport},
	}

	for _, tt := range tests {
		err := classifyError(tt.statusCode, "test message")
		if !errors.Is(err, tt.want) {
			t.Errorf("classifyError(%d): got %v, want %v", tt.statusCode, err, tt.want)
		}
		var sendErr *sendError
		if !errors.As(err, &sendErr) || sendErr.statusCode != tt.statusCode {
			t.Errorf("classifyError(%d): expected wrapped *sendError, got %v", tt.statusCode, err)
		}
	}
}

func TestSendError_Error(t *testing.T) {
	t.Parallel()

	err := &sendError{
		message:    "test error",
		statusCode: 500,
	}

	expected := "Graph API error (HTTP 500): test error"
	if err.Error() != expected {
		t.Errorf("Error(): got %q, want %q", err.Error(), expected)
	}
}
