// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/logging"
	"github.com/adiadia/hitl-gateway/internal/signing"
	"github.com/redis/go-redis/v9"
)

func sampleChange() StatusChange {
	return StatusChange{
		WorkflowID: "wf_1",
		ApprovalID: "appr_1",
		Checkpoint: domain.CheckpointBrandVoice,
		Status:     domain.WorkflowApproved,
		Decision:   domain.DecisionApprove,
		NextAction: "proceed_to_content_strategy",
		OccurredAt: time.Now().UTC().Truncate(time.Second),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}
}

func TestWebhookNotifierRetriesAndSigns(t *testing.T) {
	var attempts int32
	secret := "super-secret"
	change := sampleChange()

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		current := atomic.AddInt32(&attempts, 1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if !signing.Verify(secret, body, r.Header.Get(signing.Header)) {
			t.Errorf("signature did not verify")
		}

		var got StatusChange
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal payload: %v", err)
		}
		if got.WorkflowID != change.WorkflowID || got.Status != change.Status {
			t.Errorf("unexpected payload %+v", got)
		}

		if current < 3 {
			return response(http.StatusInternalServerError), nil
		}
		return response(http.StatusOK), nil
	})}

	n := NewWebhookNotifier("http://resume.local/callback", secret, client, logging.Discard())
	n.retryBase = time.Millisecond

	if err := n.Notify(context.Background(), change); err != nil {
		t.Fatalf("expected delivery on third attempt, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 webhook attempts got %d", got)
	}
}

func TestWebhookNotifierStopsAfterRetryLimit(t *testing.T) {
	var attempts int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		if r.Header.Get(signing.Header) != "" {
			t.Errorf("unsigned delivery expected without secret")
		}
		return response(http.StatusBadGateway), nil
	})}

	n := NewWebhookNotifier("http://resume.local/callback", "", client, logging.Discard())
	n.retryBase = time.Millisecond

	if err := n.Notify(context.Background(), sampleChange()); err == nil {
		t.Fatal("expected exhausted retries error")
	}
	if got := atomic.LoadInt32(&attempts); got != webhookRetryAttempts {
		t.Fatalf("expected %d attempts got %d", webhookRetryAttempts, got)
	}
}

func TestWebhookNotifierWithoutURLIsNoop(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})}
	n := NewWebhookNotifier("  ", "", client, logging.Discard())
	if err := n.Notify(context.Background(), sampleChange()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestBusDeliversToWorkflowSubscribers(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe("wf_1")
	other, cancelOther := bus.Subscribe("wf_2")
	defer cancelOther()

	if err := bus.Notify(context.Background(), sampleChange()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case got := <-ch:
		if got.Status != domain.WorkflowApproved {
			t.Fatalf("unexpected change %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected change for wf_1")
	}
	select {
	case got := <-other:
		t.Fatalf("wf_2 subscriber should not see %+v", got)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
	if bus.Subscribers("wf_1") != 0 {
		t.Fatal("expected subscriber removed")
	}
}

func TestBusNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus(1)
	_, cancel := bus.Subscribe("wf_1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = bus.Notify(context.Background(), sampleChange())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.messages = append(f.messages, b)
	}
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	fake := &fakePublisher{}
	p := NewRedisPublisher(fake, "hitl:status")

	if err := p.Notify(context.Background(), sampleChange()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if fake.channel != "hitl:status" || len(fake.messages) != 1 {
		t.Fatalf("unexpected publish %q %d", fake.channel, len(fake.messages))
	}
	var got StatusChange
	if err := json.Unmarshal(fake.messages[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.NextAction != "proceed_to_content_strategy" {
		t.Fatalf("unexpected payload %+v", got)
	}

	fake.err = errors.New("connection refused")
	if err := p.Notify(context.Background(), sampleChange()); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	var delivered int32
	ok := NotifierFunc(func(context.Context, StatusChange) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})
	boom := errors.New("boom")
	failing := NotifierFunc(func(context.Context, StatusChange) error { return boom })

	m := NewMulti(logging.Discard(),
		Sink{Name: "first", Notifier: ok},
		Sink{Name: "broken", Notifier: failing},
		Sink{Name: "last", Notifier: ok},
	)
	err := m.Notify(context.Background(), sampleChange())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if got := atomic.LoadInt32(&delivered); got != 2 {
		t.Fatalf("expected both healthy sinks delivered, got %d", got)
	}
}

func TestAsyncWaitsForInflight(t *testing.T) {
	var delivered int32
	slow := NotifierFunc(func(ctx context.Context, _ StatusChange) error {
		time.Sleep(20 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	a := NewAsync(slow, time.Second, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Notify(ctx, sampleChange()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	// Request contexts end with the handler; delivery must outlive them.
	cancel()
	a.Wait()

	if got := atomic.LoadInt32(&delivered); got != 1 {
		t.Fatalf("expected delivery after request cancel, got %d", got)
	}
}
