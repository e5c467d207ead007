package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sendErrKind(t *testing.T, err error) Kind {
	t.Helper()
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SendError, got %T: %v", err, err)
	}
	return se.Kind
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"+919876543210", "+919876543210", true},
		{"9876543210", "+919876543210", true}, // default country code applied
		{"+1 415 555 26 71", "+14155552671", true},
		{"+91-98765-43210", "+919876543210", true},
		{"", "", false},
		{"+91abc5543210", "", false},
		{"+12345", "", false},             // too short
		{"+1234567890123456", "", false},  // too long
		{"not a number at all", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizePhone(tt.in, "+91")
		if ok != tt.valid {
			t.Errorf("normalizePhone(%q) valid = %v, want %v", tt.in, ok, tt.valid)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("normalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSMSGateway_Send(t *testing.T) {
	var received smsPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewSMSGateway(srv.URL, "+10000000000", "+91", srv.Client())
	err := g.Send(context.Background(), "9876543210", "Flood Warning", "move to higher ground")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received.To != "+919876543210" {
		t.Errorf("expected normalized number, got %q", received.To)
	}
	if received.From != "+10000000000" {
		t.Errorf("unexpected sender %q", received.From)
	}
}

func TestSMSGateway_InvalidNumberNotSent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	g := NewSMSGateway(srv.URL, "+10000000000", "+91", srv.Client())
	err := g.Send(context.Background(), "bogus", "t", "b")
	if kind := sendErrKind(t, err); kind != KindInvalidRecipient {
		t.Errorf("expected KindInvalidRecipient, got %s", kind)
	}
	if called {
		t.Error("gateway was called for an invalid number")
	}

	var se *SendError
	errors.As(err, &se)
	if se.Retryable() {
		t.Error("invalid recipient must not be retryable")
	}
}

func TestSMSGateway_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindInvalidRecipient},
		{http.StatusNotFound, KindInvalidRecipient},
		{http.StatusTooManyRequests, KindUnavailable},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusServiceUnavailable, KindUnavailable},
		{http.StatusGatewayTimeout, KindTimeout},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		g := NewSMSGateway(srv.URL, "+10000000000", "+91", srv.Client())
		err := g.Send(context.Background(), "+919876543210", "t", "b")
		if kind := sendErrKind(t, err); kind != tt.want {
			t.Errorf("status %d classified as %s, want %s", tt.status, kind, tt.want)
		}
		srv.Close()
	}
}

func TestSMSGateway_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	g := NewSMSGateway(srv.URL, "+10000000000", "+91", nil)
	err := g.Send(context.Background(), "+919876543210", "t", "b")
	if kind := sendErrKind(t, err); kind != KindUnavailable {
		t.Errorf("expected KindUnavailable, got %s", kind)
	}
}

func TestEmailGateway_Send(t *testing.T) {
	var received emailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	g := NewEmailGateway(srv.URL, "alerts@disasterwatch.example", srv.Client())
	err := g.Send(context.Background(), "asha@example.com", "Flood Warning", "move to higher ground")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received.To != "asha@example.com" || received.Subject != "Flood Warning" {
		t.Errorf("unexpected payload %+v", received)
	}
}

func TestEmailGateway_InvalidAddress(t *testing.T) {
	g := NewEmailGateway("http://unused.example", "alerts@disasterwatch.example", nil)

	for _, addr := range []string{"", "plainstring", "@nodomain", "two@@ats.example"} {
		err := g.Send(context.Background(), addr, "t", "b")
		if kind := sendErrKind(t, err); kind != KindInvalidRecipient {
			t.Errorf("address %q classified as %s, want KindInvalidRecipient", addr, kind)
		}
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(&SendError{Kind: KindTimeout}); got != KindTimeout {
		t.Errorf("Classify(SendError) = %s, want TIMEOUT", got)
	}
	if got := Classify(context.DeadlineExceeded); got != KindTimeout {
		t.Errorf("Classify(DeadlineExceeded) = %s, want TIMEOUT", got)
	}
	if got := Classify(errors.New("boom")); got != KindUnavailable {
		t.Errorf("Classify(unknown) = %s, want SERVICE_UNAVAILABLE", got)
	}
}
