package mailqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testStream = "datacake:mail:test"

func TestProducerConsumer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := newMiniRedis(t)
	log := logger.Discard()

	consumer, err := NewConsumer(rdb, log, testStream, "g", "c1", WithBlockTime(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	producer := NewProducer(rdb, log, testStream)

	msg := NewMailMessage("ana@x.com", "Código de verificação - DataCake", "Seu código é 123456 (expira em 2 minutos).", "register")
	if err := producer.Submit(ctx, msg); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n, _ := producer.QueueLength(ctx); n != 1 {
		t.Fatalf("expected 1 message in stream, got %d", n)
	}

	got, err := consumer.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Message.ID != msg.ID || got[0].Message.To != "ana@x.com" {
		t.Fatalf("unexpected message %+v", got[0].Message)
	}

	if pending, _ := consumer.Pending(ctx); pending != 1 {
		t.Fatalf("expected 1 pending, got %d", pending)
	}
	if err := consumer.Ack(ctx, got[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if pending, _ := consumer.Pending(ctx); pending != 0 {
		t.Fatalf("expected 0 pending, got %d", pending)
	}
}

func TestConsumer_HandleFailureRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	rdb := newMiniRedis(t)
	log := logger.Discard()

	consumer, err := NewConsumer(rdb, log, testStream, "g", "c1", WithBlockTime(10*time.Millisecond), WithMaxRetry(1))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	producer := NewProducer(rdb, log, testStream)
	if err := producer.Submit(ctx, NewMailMessage("ana@x.com", "s", "b", "register")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	first := readOne(t, consumer)
	action, err := consumer.HandleFailure(ctx, first, errors.New("smtp down"))
	if err != nil || action != FailureActionRetry {
		t.Fatalf("expected retry, got %s %v", action, err)
	}

	second := readOne(t, consumer)
	if second.Message.Retry != 1 || second.Message.ID != first.Message.ID {
		t.Fatalf("unexpected retried message %+v", second.Message)
	}
	action, err = consumer.HandleFailure(ctx, second, errors.New("smtp down"))
	if err != nil || action != FailureActionDLQ {
		t.Fatalf("expected dlq, got %s %v", action, err)
	}

	dlq, err := rdb.XRange(ctx, consumer.DeadLetterStream(), "-", "+").Result()
	if err != nil || len(dlq) != 1 {
		t.Fatalf("expected 1 dead letter, got %d (%v)", len(dlq), err)
	}
	if dlq[0].Values["reason"] != "smtp down" {
		t.Fatalf("unexpected dead letter %+v", dlq[0].Values)
	}
	if pending, _ := consumer.Pending(ctx); pending != 0 {
		t.Fatalf("expected 0 pending, got %d", pending)
	}
}

func TestConsumer_PoisonMessageGoesToDeadLetter(t *testing.T) {
	ctx := context.Background()
	rdb := newMiniRedis(t)

	consumer, err := NewConsumer(rdb, logger.Discard(), testStream, "g", "c1", WithBlockTime(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"data": "{not json"},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}

	got, err := consumer.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("poison message should not be delivered")
	}
	if n, _ := rdb.XLen(ctx, testStream+":dlq").Result(); n != 1 {
		t.Fatalf("expected poison message in dlq, got %d", n)
	}
}

func TestNewConsumer_GroupAlreadyExists(t *testing.T) {
	rdb := newMiniRedis(t)
	if _, err := NewConsumer(rdb, logger.Discard(), testStream, "g", "c1"); err != nil {
		t.Fatalf("first consumer: %v", err)
	}
	if _, err := NewConsumer(rdb, logger.Discard(), testStream, "g", "c2"); err != nil {
		t.Fatalf("second consumer on same group: %v", err)
	}
}

func readOne(t *testing.T, c *Consumer) *Delivery {
	t.Helper()
	got, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected message")
	}
	return got[0]
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		s.Close()
	})
	return rdb
}
