package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disasterwatch/alert-engine/internal/gateway"
	"github.com/disasterwatch/alert-engine/internal/models"
	"github.com/disasterwatch/alert-engine/internal/observability"
)

// Outcome records one delivery attempt's final state for a recipient. It is
// logged, never persisted.
type Outcome struct {
	RecipientID string
	Channel     models.Channel
	Success     bool
	Attempt     int
	ErrorKind   gateway.Kind // empty on success
}

// Result summarizes a broadcast.
type Result struct {
	Requested   int
	Delivered   int
	Invalid     int // excluded after first attempt, never retried
	Undelivered int // still failing after the final round
	Outcomes    []Outcome
}

// Dispatcher fans a message out to a recipient list in bounded retry
// rounds. Deliveries within a round run concurrently on a bounded set of
// workers; rounds are strictly sequential because each round's input is the
// previous round's transient failures.
type Dispatcher struct {
	gateways       map[models.Channel]gateway.Gateway
	maxRounds      int
	workers        int
	attemptTimeout time.Duration
	metrics        *observability.Metrics
}

func NewDispatcher(gateways []gateway.Gateway, maxRounds, workers int, attemptTimeout time.Duration, metrics *observability.Metrics) *Dispatcher {
	byChannel := make(map[models.Channel]gateway.Gateway, len(gateways))
	for _, g := range gateways {
		byChannel[g.Channel()] = g
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		gateways:       byChannel,
		maxRounds:      maxRounds,
		workers:        workers,
		attemptTimeout: attemptTimeout,
		metrics:        metrics,
	}
}

type attemptResult struct {
	recipient models.Recipient
	err       error
}

// Dispatch delivers the message to every recipient, retrying transient and
// timeout failures for up to maxRounds rounds. Recipients still failing
// after the final round are logged as permanently undelivered; this never
// surfaces as an error because partial notification must not abort the
// broadcast.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []models.Recipient, subject, body string, ch models.Channel) (Result, error) {
	gw, ok := d.gateways[ch]
	if !ok {
		return Result{}, fmt.Errorf("no gateway registered for channel %q", ch)
	}

	res := Result{Requested: len(recipients)}
	pending := recipients

	rounds := 0
	for rounds < d.maxRounds && len(pending) > 0 {
		rounds++
		results := d.runRound(ctx, gw, pending, subject, body, ch)

		var failed []models.Recipient
		for _, a := range results {
			if a.err == nil {
				res.Delivered++
				res.Outcomes = append(res.Outcomes, Outcome{
					RecipientID: a.recipient.ID, Channel: ch, Success: true, Attempt: rounds,
				})
				d.count(ch, "delivered")
				continue
			}

			kind := gateway.Classify(a.err)
			res.Outcomes = append(res.Outcomes, Outcome{
				RecipientID: a.recipient.ID, Channel: ch, Attempt: rounds, ErrorKind: kind,
			})
			if kind == gateway.KindInvalidRecipient {
				res.Invalid++
				d.count(ch, "invalid")
				slog.Warn("recipient address invalid, excluded from retry",
					"recipient", a.recipient.ID, "channel", ch)
				continue
			}
			failed = append(failed, a.recipient)
		}
		pending = failed
	}

	res.Undelivered = len(pending)
	for _, r := range pending {
		d.count(ch, "undelivered")
		slog.Error("recipient permanently undelivered after retry rounds",
			"recipient", r.ID, "channel", ch, "rounds", rounds)
	}
	if d.metrics != nil {
		d.metrics.DispatchRounds.Observe(float64(rounds))
	}

	slog.Info("broadcast complete", "channel", ch, "requested", res.Requested,
		"delivered", res.Delivered, "invalid", res.Invalid, "undelivered", res.Undelivered)
	return res, nil
}

// runRound attempts one delivery per pending recipient with at most
// d.workers in flight, joining before it returns.
func (d *Dispatcher) runRound(ctx context.Context, gw gateway.Gateway, pending []models.Recipient, subject, body string, ch models.Channel) []attemptResult {
	results := make([]attemptResult, len(pending))
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

	for i, r := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, r models.Recipient) {
			defer wg.Done()
			defer func() { <-sem }()

			attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
			defer cancel()

			err := gw.Send(attemptCtx, r.Address(ch), subject, body)
			results[i] = attemptResult{recipient: r, err: err}
		}(i, r)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) count(ch models.Channel, outcome string) {
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(string(ch), outcome).Inc()
	}
}
