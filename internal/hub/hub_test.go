package hub

import (
	"encoding/json"
	"testing"
)

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case payload := <-sub.Send:
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("undecodable frame: %v", err)
		}
		return ev
	default:
		t.Fatal("expected a frame")
		return Event{}
	}
}

func TestPublishReachesTopicSubscribersOnly(t *testing.T) {
	h := New()
	a, b := NewSubscriber(), NewSubscriber()
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, TopicPulse)
	h.Subscribe(b, TokenTopic("mint1"))

	h.Publish(TopicPulse, "pulse:new-pair", map[string]string{"address": "mint1"})

	ev := recvEvent(t, a)
	if ev.Type != "pulse:new-pair" {
		t.Errorf("unexpected event type %s", ev.Type)
	}
	select {
	case <-b.Send:
		t.Error("subscriber of a different topic must not receive the frame")
	default:
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	h := New()
	slow := NewSubscriber()
	h.Register(slow)
	h.Subscribe(slow, TopicPulse)

	// Overflow the buffer; Publish must never block
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(TopicPulse, "price:update", i)
	}
	if h.Dropped() != 10 {
		t.Errorf("expected 10 dropped frames, got %d", h.Dropped())
	}
}

func TestUnregisterReleasesTopics(t *testing.T) {
	h := New()
	sub := NewSubscriber()
	h.Register(sub)
	h.Subscribe(sub, TopicDashboard)

	if !h.HasSubscribers(TopicDashboard) {
		t.Fatal("expected a dashboard subscriber")
	}
	h.Unregister(sub)
	if h.HasSubscribers(TopicDashboard) {
		t.Error("topic membership must be released on unregister")
	}
	if h.SubscriberCount() != 0 {
		t.Error("subscriber registry must be empty")
	}

	// Send channel is closed
	if _, open := <-sub.Send; open {
		t.Error("send channel must be closed after unregister")
	}
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	h := New()
	sub := NewSubscriber()
	h.Register(sub)
	h.Unregister(sub)
	h.Unregister(sub) // must not panic on double close
}

func TestPublishAfterUnregisterIsSafe(t *testing.T) {
	h := New()
	sub := NewSubscriber()
	h.Register(sub)
	h.Subscribe(sub, TopicPulse)
	h.Unregister(sub)

	// must not panic on closed channel
	h.Publish(TopicPulse, "price:update", 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	sub := NewSubscriber()
	h.Register(sub)
	topic := OHLCVTopic("mint1", "USD", "1m")
	h.Subscribe(sub, topic)
	h.Unsubscribe(sub, topic)

	h.Publish(topic, "ohlcv:update", nil)
	select {
	case <-sub.Send:
		t.Error("unsubscribed topic must not deliver")
	default:
	}
}

func TestPerTopicFIFO(t *testing.T) {
	h := New()
	sub := NewSubscriber()
	h.Register(sub)
	h.Subscribe(sub, TopicPulse)

	for i := 0; i < 5; i++ {
		h.Publish(TopicPulse, "price:update", i)
	}
	for i := 0; i < 5; i++ {
		ev := recvEvent(t, sub)
		if int(ev.Data.(float64)) != i {
			t.Fatalf("expected frame %d in order, got %v", i, ev.Data)
		}
	}
}
