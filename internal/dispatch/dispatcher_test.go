package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/disasterwatch/alert-engine/internal/gateway"
	"github.com/disasterwatch/alert-engine/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedGateway fails each address a fixed number of times with the
// given kind, then succeeds. kind==INVALID_RECIPIENT fails forever.
type scriptedGateway struct {
	mu       sync.Mutex
	failures map[string]int
	kinds    map[string]gateway.Kind
	attempts map[string]int
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		failures: map[string]int{},
		kinds:    map[string]gateway.Kind{},
		attempts: map[string]int{},
	}
}

func (g *scriptedGateway) fail(address string, times int, kind gateway.Kind) {
	g.failures[address] = times
	g.kinds[address] = kind
}

func (g *scriptedGateway) Channel() models.Channel { return models.ChannelSMS }

func (g *scriptedGateway) Send(ctx context.Context, address, subject, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.attempts[address]++
	kind := g.kinds[address]
	if kind == gateway.KindInvalidRecipient {
		return &gateway.SendError{Kind: kind}
	}
	if g.failures[address] > 0 {
		g.failures[address]--
		return &gateway.SendError{Kind: kind}
	}
	return nil
}

func (g *scriptedGateway) attemptCount(address string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[address]
}

func recipient(id, phone string) models.Recipient {
	return models.Recipient{ID: id, Phone: phone, OptIns: models.OptIns{SMS: true}}
}

func newTestDispatcher(gw gateway.Gateway, maxRounds int) *Dispatcher {
	return NewDispatcher([]gateway.Gateway{gw}, maxRounds, 4, time.Second, nil)
}

func TestDispatcher_AllSucceedFirstRound(t *testing.T) {
	gw := newScriptedGateway()
	d := newTestDispatcher(gw, 5)

	recipients := []models.Recipient{
		recipient("a", "+911111111111"),
		recipient("b", "+912222222222"),
		recipient("c", "+913333333333"),
	}

	res, err := d.Dispatch(context.Background(), recipients, "alert", "body", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 3 || res.Undelivered != 0 || res.Invalid != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	for _, r := range recipients {
		if got := gw.attemptCount(r.Phone); got != 1 {
			t.Errorf("recipient %s attempted %d times, want 1", r.ID, got)
		}
	}
}

func TestDispatcher_TransientFailureRetriedNextRound(t *testing.T) {
	gw := newScriptedGateway()
	gw.fail("+911111111111", 1, gateway.KindUnavailable) // A fails once then succeeds
	gw.fail("+912222222222", 100, gateway.KindUnavailable) // B always fails

	d := newTestDispatcher(gw, 5)
	recipients := []models.Recipient{
		recipient("a", "+911111111111"),
		recipient("b", "+912222222222"),
	}

	res, err := d.Dispatch(context.Background(), recipients, "alert", "body", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", res.Delivered)
	}
	if res.Undelivered != 1 {
		t.Errorf("Undelivered = %d, want 1", res.Undelivered)
	}
	if got := gw.attemptCount("+911111111111"); got != 2 {
		t.Errorf("A attempted %d times, want 2", got)
	}
	// B participates in every round up to the bound, then stops for good.
	if got := gw.attemptCount("+912222222222"); got != 5 {
		t.Errorf("B attempted %d times, want 5", got)
	}
}

func TestDispatcher_InvalidRecipientNeverRetried(t *testing.T) {
	gw := newScriptedGateway()
	gw.fail("+911111111111", 1, gateway.KindUnavailable)
	gw.fail("+912222222222", 0, gateway.KindInvalidRecipient)

	d := newTestDispatcher(gw, 5)
	recipients := []models.Recipient{
		recipient("a", "+911111111111"),
		recipient("b", "+912222222222"),
	}

	res, err := d.Dispatch(context.Background(), recipients, "alert", "body", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 1 || res.Invalid != 1 || res.Undelivered != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if got := gw.attemptCount("+912222222222"); got != 1 {
		t.Errorf("invalid recipient attempted %d times, want 1", got)
	}
}

func TestDispatcher_TimeoutsAreRetried(t *testing.T) {
	gw := newScriptedGateway()
	gw.fail("+911111111111", 2, gateway.KindTimeout)

	d := newTestDispatcher(gw, 5)
	res, err := d.Dispatch(context.Background(), []models.Recipient{recipient("a", "+911111111111")}, "alert", "body", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", res.Delivered)
	}
	if got := gw.attemptCount("+911111111111"); got != 3 {
		t.Errorf("attempted %d times, want 3", got)
	}
}

func TestDispatcher_EmptyRecipientList(t *testing.T) {
	d := newTestDispatcher(newScriptedGateway(), 5)
	res, err := d.Dispatch(context.Background(), nil, "alert", "body", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Requested != 0 || res.Delivered != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDispatcher_UnknownChannel(t *testing.T) {
	d := newTestDispatcher(newScriptedGateway(), 5)
	if _, err := d.Dispatch(context.Background(), nil, "a", "b", models.ChannelPush); err == nil {
		t.Error("expected error for channel without a gateway")
	}
}

func TestDispatcher_OutcomesRecordAttemptNumbers(t *testing.T) {
	gw := newScriptedGateway()
	gw.fail("+911111111111", 1, gateway.KindUnavailable)

	d := newTestDispatcher(gw, 5)
	res, err := d.Dispatch(context.Background(), []models.Recipient{recipient("a", "+911111111111")}, "alert", "body", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(res.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", res.Outcomes)
	}
	first, second := res.Outcomes[0], res.Outcomes[1]
	if first.Success || first.Attempt != 1 || first.ErrorKind != gateway.KindUnavailable {
		t.Errorf("unexpected first outcome %+v", first)
	}
	if !second.Success || second.Attempt != 2 {
		t.Errorf("unexpected second outcome %+v", second)
	}
}
