package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/dedup"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/mailqueue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	mu       sync.Mutex
	batches  [][]*mailqueue.Delivery
	acked    []string
	failures []string
}

func (s *fakeSource) Read(ctx context.Context) ([]*mailqueue.Delivery, error) {
	s.mu.Lock()
	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeSource) Ack(_ context.Context, msgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, msgID)
	return nil
}

func (s *fakeSource) HandleFailure(_ context.Context, d *mailqueue.Delivery, _ error) (mailqueue.FailureAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, d.ID)
	return mailqueue.FailureActionRetry, nil
}

func (s *fakeSource) ackedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeLimiter struct {
	err error

	mu   sync.Mutex
	seen []string
}

func (l *fakeLimiter) Acquire(_ context.Context, to string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, to)
	return l.err
}

func newDeduper(t *testing.T) *dedup.Deduplicator {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return dedup.NewDeduplicator(rdb, time.Minute, "")
}

func delivery(id, to string) *mailqueue.Delivery {
	return &mailqueue.Delivery{ID: id, Message: mailqueue.NewMailMessage(to, "s", "b", "register")}
}

func TestHandle_DeliversAndAcks(t *testing.T) {
	src := &fakeSource{}
	sender := &fakeSender{}
	w := NewWorker(src, sender, &fakeLimiter{}, newDeduper(t), logger.Discard(), 1, 1)

	if err := w.Handle(context.Background(), delivery("1-0", "ana@x.com")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected one mail sent, got %d", sender.count())
	}
	if got := src.ackedIDs(); len(got) != 1 || got[0] != "1-0" {
		t.Fatalf("unexpected acks: %v", got)
	}
}

func TestHandle_SkipsDuplicate(t *testing.T) {
	src := &fakeSource{}
	sender := &fakeSender{}
	w := NewWorker(src, sender, nil, newDeduper(t), logger.Discard(), 1, 1)

	d := delivery("1-0", "ana@x.com")
	again := &mailqueue.Delivery{ID: "2-0", Message: d.Message}
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := w.Handle(context.Background(), again); err != nil {
		t.Fatalf("handle duplicate: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("duplicate should not be sent, sent=%d", sender.count())
	}
	if got := src.ackedIDs(); len(got) != 2 {
		t.Fatalf("both deliveries should be acked, got %v", got)
	}
}

func TestHandle_FailureReleasesDedupKey(t *testing.T) {
	src := &fakeSource{}
	sender := &fakeSender{err: errors.New("smtp down")}
	deduper := newDeduper(t)
	w := NewWorker(src, sender, nil, deduper, logger.Discard(), 1, 1)

	d := delivery("1-0", "ana@x.com")
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(src.failures) != 1 || len(src.ackedIDs()) != 0 {
		t.Fatalf("expected failure path, failures=%v acked=%v", src.failures, src.ackedIDs())
	}

	dup, err := deduper.IsDuplicate(context.Background(), d.Message.ID)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if dup {
		t.Fatalf("dedup key should be released after a failed send")
	}
}

func TestHandle_RateLimitErrorIsRetried(t *testing.T) {
	src := &fakeSource{}
	sender := &fakeSender{}
	w := NewWorker(src, sender, &fakeLimiter{err: errors.New("timeout")}, nil, logger.Discard(), 1, 1)

	if err := w.Handle(context.Background(), delivery("1-0", "ana@x.com")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sender.count() != 0 || len(src.failures) != 1 {
		t.Fatalf("expected retry without sending, sent=%d failures=%v", sender.count(), src.failures)
	}
}

func TestHandle_LimiterSeesRecipient(t *testing.T) {
	src := &fakeSource{}
	sender := &fakeSender{}
	limiter := &fakeLimiter{}
	w := NewWorker(src, sender, limiter, nil, logger.Discard(), 1, 1)

	if err := w.Handle(context.Background(), delivery("1-0", "bia@gmail.com")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(limiter.seen) != 1 || limiter.seen[0] != "bia@gmail.com" {
		t.Fatalf("limiter should be asked for the recipient, got %v", limiter.seen)
	}
}

func TestRun_ProcessesBatchesUntilCancelled(t *testing.T) {
	src := &fakeSource{batches: [][]*mailqueue.Delivery{
		{delivery("1-0", "a@x.com"), delivery("2-0", "b@x.com")},
		{delivery("3-0", "c@x.com")},
	}}
	sender := &fakeSender{}
	w := NewWorker(src, sender, nil, nil, logger.Discard(), 2, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if sender.count() != 3 {
		t.Fatalf("expected 3 mails, got %d", sender.count())
	}
}
