package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	if err := q.Publish(ctx, Message{Type: "roster.import", Body: []byte(`{"a":1}`)}); err != nil {
		t.Fatal(err)
	}
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != "roster.import" || string(msg.Body) != `{"a":1}` {
			t.Fatalf("msg = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("unexpected message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{Type: "x"}); err == nil {
		t.Fatal("publish to a full queue should fail once ctx expires")
	}
}

func TestSerializeRoundTripKeepsPipesInBody(t *testing.T) {
	msg := Message{Type: "roster.import", Body: []byte(`{"name":"a|b"}`)}
	got, err := deserialize(serialize(msg))
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Fatalf("got %+v", got)
	}
	if _, err := deserialize("no-separator"); err == nil {
		t.Fatal("expected error for untyped message")
	}
}
