package events

import "testing"

func TestPublishReachesTopicSubscribersOnly(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	cars := hub.Subscribe(TopicCars, 4)
	price := hub.Subscribe(TopicPrice, 4)

	if n := hub.Publish(TopicCars, "snapshot"); n != 1 {
		t.Fatalf("Expected 1 receiver, got %d", n)
	}

	ev := <-cars.C
	if ev.Topic != TopicCars || ev.Payload.(string) != "snapshot" {
		t.Errorf("Unexpected event: %+v", ev)
	}

	select {
	case ev := <-price.C:
		t.Errorf("Price subscriber should not receive cars event, got %+v", ev)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := hub.Subscribe(TopicPrice, 1)
	hub.Publish(TopicPrice, 1)
	if n := hub.Publish(TopicPrice, 2); n != 0 {
		t.Errorf("Expected full subscriber to be skipped, got %d receivers", n)
	}

	if ev := <-sub.C; ev.Payload.(int) != 1 {
		t.Errorf("Expected first event to be kept, got %v", ev.Payload)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(TopicStatus, 1)
	if hub.SubscriberCount(TopicStatus) != 1 {
		t.Fatalf("Expected one subscriber")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.C; ok {
		t.Errorf("Expected channel to be closed after Unsubscribe")
	}
	if hub.SubscriberCount(TopicStatus) != 0 {
		t.Errorf("Expected no subscribers after Unsubscribe")
	}

	hub.Close()
	late := hub.Subscribe(TopicStatus, 1)
	if _, ok := <-late.C; ok {
		t.Errorf("Expected subscription on closed hub to be closed")
	}
	if n := hub.Publish(TopicStatus, "x"); n != 0 {
		t.Errorf("Expected publish on closed hub to reach nobody")
	}
}
