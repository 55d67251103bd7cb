package messaging

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestMessageCarrier(t *testing.T) {
	t.Run("set and get round trip", func(t *testing.T) {
		msg := &kafka.Message{}
		carrier := NewMessageCarrier(msg)

		carrier.Set("traceparent", "00-abc-def-01")

		if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
			t.Errorf("expected header value, got %q", got)
		}
	})

	t.Run("set overwrites existing header", func(t *testing.T) {
		msg := &kafka.Message{Headers: []kafka.Header{{Key: "k", Value: []byte("old")}}}
		carrier := NewMessageCarrier(msg)

		carrier.Set("k", "new")

		if len(msg.Headers) != 1 {
			t.Fatalf("expected 1 header, got %d", len(msg.Headers))
		}
		if got := carrier.Get("k"); got != "new" {
			t.Errorf("expected overwritten value, got %q", got)
		}
	})

	t.Run("get missing key returns empty", func(t *testing.T) {
		carrier := NewMessageCarrier(&kafka.Message{})
		if got := carrier.Get("absent"); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})

	t.Run("keys lists all headers", func(t *testing.T) {
		msg := &kafka.Message{}
		carrier := NewMessageCarrier(msg)
		carrier.Set("a", "1")
		carrier.Set("b", "2")

		keys := carrier.Keys()
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("unexpected keys: %v", keys)
		}
	})
}
