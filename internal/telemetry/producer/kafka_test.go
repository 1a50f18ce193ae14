package producer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"identity-sync/internal/telemetry"
)

var _ Producer = (*KafkaProducer)(nil)
var _ telemetry.EventEmitter = (*KafkaProducer)(nil)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "identity-events"); p != nil {
		t.Error("no brokers should disable the producer")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should disable the producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), telemetry.NewEvent(telemetry.EventUserSynced, "test")); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaProducerWithWriter(w, "identity-events")
	ev := telemetry.NewEvent(telemetry.EventUserCreated, "sync").WithUser(1, "auth0|abc123")
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "auth0|abc123" {
		t.Errorf("key = %q, want subject", msg.Key)
	}
	var got telemetry.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Type != telemetry.EventUserCreated || got.UserID != "1" {
		t.Errorf("payload = %+v", got)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != telemetry.EventUserCreated {
		t.Errorf("headers = %+v", msg.Headers)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close err=%v closed=%v", err, w.closed)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewKafkaProducerWithWriter(w, "identity-events")
	if err := p.Emit(context.Background(), telemetry.NewEvent(telemetry.EventUserSynced, "sync")); err == nil {
		t.Fatal("Emit should surface writer errors")
	}
}
