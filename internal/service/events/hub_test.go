package events_test

import (
	"testing"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/events"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := events.NewHub()
	first, cancelFirst := hub.Subscribe(4)
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe(4)
	defer cancelSecond()

	hub.Emit(event.Event{Kind: event.KindStage, Stage: "dialogue"})

	for _, ch := range []<-chan event.Event{first, second} {
		got := <-ch
		if got.Kind != event.KindStage || got.ID == "" || got.CreatedAt.IsZero() {
			t.Fatalf("unexpected event: %+v", got)
		}
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := events.NewHub()
	slow, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Emit(event.Event{Kind: event.KindStage})
	hub.Emit(event.Event{Kind: event.KindStage})

	if hub.Subscribers() != 0 {
		t.Fatalf("expected slow subscriber to be dropped, have %d", hub.Subscribers())
	}
	<-slow
	if _, ok := <-slow; ok {
		t.Fatal("expected channel to be closed")
	}
}

func TestHubCancelAndClose(t *testing.T) {
	hub := events.NewHub()
	ch, cancel := hub.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}

	hub.Close()
	late, _ := hub.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel after hub close")
	}
}
