package rabbitmq

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/comet/internal/moderation"
)

func TestPublishModeration(t *testing.T) {
	url := os.Getenv("RABBIT_URL")
	if url == "" {
		t.Skip("RABBIT_URL not set")
	}
	queue := "comet_test_" + time.Now().Format("150405.000000")

	p, err := NewPublisher(url, queue)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer p.Close()
	defer func() {
		_, _ = p.ch.QueueDelete(queue, false, false, false)
		_, _ = p.ch.QueueDelete(queue+".dlq", false, false, false)
	}()

	ev := moderation.Event{ModerationID: "modr-1", Source: "input", ThreadID: "t1", At: time.Now().UTC()}
	if err := p.PublishModeration(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var d amqp.Delivery
	var ok bool
	for i := 0; i < 20 && !ok; i++ {
		d, ok, err = p.ch.Get(queue, true)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !ok {
			time.Sleep(50 * time.Millisecond)
		}
	}
	if !ok {
		t.Fatalf("message not delivered")
	}
	if d.MessageId != "modr-1" || d.Type != "moderation.flagged" {
		t.Fatalf("delivery = %+v", d)
	}
	var got moderation.Event
	if err := json.Unmarshal(d.Body, &got); err != nil || got.ThreadID != "t1" {
		t.Fatalf("body = %s, %v", d.Body, err)
	}
}
