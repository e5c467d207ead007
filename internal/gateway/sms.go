package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/disasterwatch/alert-engine/internal/models"
)

// SMSGateway posts messages to an SMS provider's HTTP API. Numbers without
// a + prefix get the configured default country code, matching how the
// provider expects E.164 input.
type SMSGateway struct {
	url         string
	from        string
	countryCode string
	http        *http.Client
}

func NewSMSGateway(url, from, countryCode string, client *http.Client) *SMSGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSGateway{url: url, from: from, countryCode: countryCode, http: client}
}

func (g *SMSGateway) Channel() models.Channel { return models.ChannelSMS }

type smsPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (g *SMSGateway) Send(ctx context.Context, address, subject, body string) error {
	to, ok := normalizePhone(address, g.countryCode)
	if !ok {
		return &SendError{Kind: KindInvalidRecipient, Err: fmt.Errorf("invalid phone number %q", address)}
	}

	text := body
	if subject != "" {
		text = fmt.Sprintf("🚨 %s 🚨\n%s", strings.ToUpper(subject), body)
	}

	payload, err := json.Marshal(smsPayload{From: g.from, To: to, Body: text})
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

	slog.Debug("sms sent", "to", to)
	return nil
}

// normalizePhone validates an E.164-like number, prefixing the default
// country code when the + is missing. Spaces and dashes are tolerated.
func normalizePhone(phone, countryCode string) (string, bool) {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	if cleaned == "" {
		return "", false
	}

	if !strings.HasPrefix(cleaned, "+") {
		cleaned = countryCode + cleaned
	}

	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return cleaned, true
}

// classifyStatus maps a gateway HTTP status to a failure kind. 4xx means
// the provider rejected the recipient; everything else non-2xx is a
// transient service problem.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &SendError{Kind: KindTimeout, Err: fmt.Errorf("gateway status %d", status)}
	case status == http.StatusTooManyRequests:
		return &SendError{Kind: KindUnavailable, Err: fmt.Errorf("gateway status %d", status)}
	case status >= 400 && status < 500:
		return &SendError{Kind: KindInvalidRecipient, Err: fmt.Errorf("gateway status %d", status)}
	default:
		return &SendError{Kind: KindUnavailable, Err: fmt.Errorf("gateway status %d", status)}
	}
}
