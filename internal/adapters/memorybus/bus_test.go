package memorybus

import "testing"

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish("job.created", []byte(`{"id":"1"}`))
	evt := <-ch
	if evt.Topic != "job.created" || string(evt.Payload) != `{"id":"1"}` {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := NewWithBuffer(1)
	_, cancel := b.Subscribe()
	defer cancel()

	b.Publish("a", nil)
	b.Publish("b", nil)
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", b.Dropped())
	}
}

func TestBus_Close(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	cancel()
	b.Publish("ignored", nil)

	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close must return a closed channel")
	}
}
