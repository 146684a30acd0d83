// Package graph implements a Provider that sends emails via the Microsoft Graph API.
package graph

import (
	"encoding/base64"

	"github.com/samber/lo"

	"github.com/shineum/emailer-lite/internal/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject       string            `json:"subject"`
	Body          messageBody       `json:"body"`
	ToRecipients  []recipient       `json:"toRecipients"`
	CcRecipients  []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients []recipient       `json:"bccRecipients,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// recipient represents an email recipient.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API request.
type emailAddress struct {
	Address string `json:"address"`
}

// graphAttachment represents a file attachment in a Graph API request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts an envelope into a Graph API sendMail
// request body. Bcc addresses only appear in bccRecipients.
func buildSendMailRequest(env *email.Envelope) *sendMailRequest {
	body := messageBody{
		ContentType: "text",
		Content:     env.Body,
	}
	if env.HTML {
		body.ContentType = "html"
	}

	attachments := lo.Map(env.Attachments, func(att email.Attachment, _ int) graphAttachment {
		return graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		}
	})

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:       env.Subject,
			Body:          body,
			ToRecipients:  toRecipients(env.To),
			CcRecipients:  toRecipients(env.Cc),
			BccRecipients: toRecipients(env.Bcc),
			Attachments:   attachments,
		},
		SaveToSentItems: true,
	}
}

func toRecipients(addrs []string) []recipient {
	return lo.Map(addrs, func(addr string, _ int) recipient {
		return recipient{EmailAddress: emailAddress{Address: addr}}
	})
}
