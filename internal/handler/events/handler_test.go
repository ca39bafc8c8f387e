package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
	eventservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/events"
)

func setupServer(t *testing.T) (*httptest.Server, *eventservice.Hub) {
	t.Helper()
	hub := eventservice.NewHub()
	r := chi.NewRouter()
	New(hub).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

// waitForSubscriber polls until the handler has subscribed to the hub.
func waitForSubscriber(t *testing.T, hub *eventservice.Hub) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSSEStreamsEvents(t *testing.T) {
	srv, hub := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest err: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events err: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	waitForSubscriber(t, hub)
	hub.Emit(event.Event{Kind: event.KindUtterances, Utterances: []scene.Utterance{{NpcName: "Aria", Content: "Hello"}}})

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read err: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if strings.TrimSpace(line) != "event: utterances" {
				t.Fatalf("unexpected event line %q", line)
			}
			data, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read data err: %v", err)
			}
			if !strings.Contains(data, `"npcName":"Aria"`) {
				t.Fatalf("unexpected data line %q", data)
			}
			return
		}
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	srv, hub := setupServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	waitForSubscriber(t, hub)
	hub.Emit(event.Event{Kind: event.KindStage, Stage: "dialogue"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got event.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON err: %v", err)
	}
	if got.Kind != event.KindStage || got.Stage != "dialogue" || got.ID == "" {
		t.Fatalf("unexpected event: %+v", got)
	}
}
