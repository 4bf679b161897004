package mq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKafkaHeadersCarryMessageMetadata(t *testing.T) {
	in := NewMessage("42", []byte(`{"submissionId":42}`))
	in.SetHeader("event", "submission.judged")
	in.MaxRetries = 5

	out := fromKafkaMessage(toKafkaMessage("submission.judged", in))

	if out.ID != "42" || string(out.Body) != `{"submissionId":42}` {
		t.Fatalf("unexpected message: %+v", out)
	}
	if out.Headers["event"] != "submission.judged" {
		t.Fatalf("custom header lost: %v", out.Headers)
	}
	if out.MaxRetries != 5 {
		t.Fatalf("max retries lost: %d", out.MaxRetries)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", out.Timestamp, in.Timestamp)
	}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}
	opts := SubscribeOptions{MaxRetries: 3, RetryDelay: time.Millisecond}

	if exhausted := deliver(context.Background(), NewMessage("1", nil), handler, opts); exhausted {
		t.Fatalf("message should not be exhausted")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDeliverReportsExhaustion(t *testing.T) {
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		return errors.New("permanent")
	}
	opts := SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond}

	if exhausted := deliver(context.Background(), NewMessage("1", nil), handler, opts); !exhausted {
		t.Fatalf("expected exhaustion")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
