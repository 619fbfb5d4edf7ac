package events

import (
	"testing"
	"time"
)

func TestBackoffIsCapped(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	if got := p.backoff(0); got != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %v", got)
	}
	if got := p.backoff(2); got != 400*time.Millisecond {
		t.Fatalf("expected 400ms, got %v", got)
	}
	if got := p.backoff(10); got != time.Second {
		t.Fatalf("expected cap of 1s, got %v", got)
	}
}

func TestWriterIsReusedPerTopic(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, RetryConfig{})
	if p.writer("wallet.ledger") != p.writer("wallet.ledger") {
		t.Fatal("expected one writer per topic")
	}
	if p.retry.MaxAttempts != 5 {
		t.Fatalf("expected default of 5 attempts, got %d", p.retry.MaxAttempts)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
