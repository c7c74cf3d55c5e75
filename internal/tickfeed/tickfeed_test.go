package tickfeed

import (
	"context"
	"testing"

	"github.com/hamed0406/uptimedispatch/internal/domain"
)

func TestNew_DisabledWithoutBrokers(t *testing.T) {
	if _, ok := New(nil, "uptime-ticks").(Noop); !ok {
		t.Fatalf("want Noop without brokers")
	}
	if _, ok := New([]string{"k1:9092"}, "").(Noop); !ok {
		t.Fatalf("want Noop without topic")
	}
	if _, ok := New([]string{"k1:9092"}, "uptime-ticks").(*KafkaPublisher); !ok {
		t.Fatalf("want KafkaPublisher when configured")
	}
}

func TestKafkaPublisher_NilSafe(t *testing.T) {
	var p *KafkaPublisher
	if err := p.Publish(context.Background(), domain.Tick{TargetID: "t1"}); err != nil {
		t.Fatalf("nil publisher should be a no-op: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestKafkaPublisher_CloseWithoutWrites(t *testing.T) {
	p := New([]string{"127.0.0.1:1"}, "uptime-ticks")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
