package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// EmailGateway posts messages to an email provider's HTTP API.
type EmailGateway struct {
	url  string
	from string
	http *http.Client
}

func NewEmailGateway(url, from string, client *http.Client) *EmailGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &EmailGateway{url: url, from: from, http: client}
}

func (g *EmailGateway) Channel() models.Channel { return models.ChannelEmail }

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (g *EmailGateway) Send(ctx context.Context, address, subject, body string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return &SendError{Kind: KindInvalidRecipient, Err: fmt.Errorf("invalid email %q: %w", address, err)}
	}

	if subject == "" {
		subject = "Disaster Alert"
	}

	payload, err := json.Marshal(emailPayload{From: g.from, To: address, Subject: subject, Body: body})
	if err != nil {
		return &SendError{Kind: KindUnavailable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return &SendError{Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return &SendError{Kind: KindTimeout, Err: err}
		}
		return &SendError{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	slog.Debug("email sent", "to", address, "subject", subject)
	return nil
}
