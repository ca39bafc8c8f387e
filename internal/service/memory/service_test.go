package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/reply"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/llm"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/ai"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/events"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/memstore"
)

var fixedNow = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

func newGateway(client llm.Client) *ai.Gateway {
	return ai.NewGateway(client, "gpt-test", 0.7, module.Set{
		module.Dialogue: {SystemPrompt: "dialogue"},
		module.Summary:  {SystemPrompt: "summary"},
		module.Story:    {SystemPrompt: "story"},
		module.Memory:   {SystemPrompt: "memory", JSONMode: true, Enabled: true},
	})
}

func newService(store *memstore.Store, rec *events.Recorder) *memory.Service {
	return memory.NewService(memory.Options{
		Store:   store,
		Emitter: rec,
		Now:     func() time.Time { return fixedNow },
	})
}

func exchange() []scene.Turn {
	return []scene.Turn{
		{Speaker: scene.SpeakerPlayer, Content: "我帮你修好了门。"},
		{Speaker: scene.SpeakerNPC, Content: `{"responses":[{"npc_name":"Bob","content":"谢谢你！","emotion":"高兴"}]}`, Format: scene.FormatJSON},
	}
}

func TestProcessMergesNewRelationshipWithDefaults(t *testing.T) {
	client := llm.NewMockClient(`{"relationship_updates":{"Bob":{"trust_level":9}}}`)
	store := memstore.New()
	svc := newService(store, &events.Recorder{})

	profile, err := svc.Process(context.Background(), memory.Job{Gateway: newGateway(client), SceneLabel: "第1幕", Turns: exchange()})
	if err != nil {
		t.Fatalf("Process err: %v", err)
	}

	bob, ok := profile.Relationships["Bob"]
	if !ok {
		t.Fatal("expected Bob relationship")
	}
	if bob.Relationship != "中立" || bob.TrustLevel != 9 || len(bob.RecentInteractions) != 0 {
		t.Fatalf("unexpected relationship: %+v", bob)
	}
	if store.Saves() != 1 {
		t.Fatalf("expected 1 save, got %d", store.Saves())
	}
	if !svc.Snapshot().UpdatedAt.Equal(fixedNow) {
		t.Fatalf("snapshot not swapped: %+v", svc.Snapshot())
	}

	req := client.Requests()[0]
	if !req.JSONMode || req.Messages[0].Content != "memory" {
		t.Fatalf("unexpected memory request: %+v", req)
	}
	if !strings.Contains(req.Messages[1].Content, "玩家：我帮你修好了门。") {
		t.Fatalf("prompt misses the new turns: %s", req.Messages[1].Content)
	}
}

func TestProcessSameDeltaTwice(t *testing.T) {
	delta := `{"new_inventory":["key"],"new_key_facts":[{"fact":"X"}]}`
	client := llm.NewMockClient(delta, delta)
	svc := newService(memstore.New(), &events.Recorder{})
	gateway := newGateway(client)

	for i := 0; i < 2; i++ {
		if _, err := svc.Process(context.Background(), memory.Job{Gateway: gateway, SceneLabel: "第1幕", Turns: exchange()}); err != nil {
			t.Fatalf("Process %d err: %v", i, err)
		}
	}

	profile := svc.Snapshot()
	if len(profile.Inventory) != 1 || profile.Inventory[0] != "key" {
		t.Fatalf("inventory should hold key once: %v", profile.Inventory)
	}
	if len(profile.KeyFacts) != 2 {
		t.Fatalf("facts should be appended twice, got %d", len(profile.KeyFacts))
	}
}

func TestProcessMalformedDeltaLeavesProfile(t *testing.T) {
	client := llm.NewMockClient(`{"new_inventory": "sword"`)
	store := memstore.New()
	rec := &events.Recorder{}
	svc := newService(store, rec)

	_, err := svc.Process(context.Background(), memory.Job{Gateway: newGateway(client), SceneLabel: "第1幕", Turns: exchange()})
	var failure *reply.ParseFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ParseFailure, got %v", err)
	}
	if !svc.Snapshot().IsEmpty() || store.Saves() != 0 {
		t.Fatal("profile must stay untouched")
	}

	ev, ok := rec.Last(event.KindError)
	if !ok || ev.Error.Kind != event.ErrParse || ev.Error.Module != string(module.Memory) {
		t.Fatalf("expected parse error event, got %+v", ev)
	}
}

func TestProcessInvalidGoalIsMergeError(t *testing.T) {
	client := llm.NewMockClient(`{"new_inventory":["rope"],"new_goals_and_promises":[{"type":"wish","content":"fly"}]}`)
	rec := &events.Recorder{}
	svc := newService(memstore.New(), rec)

	_, err := svc.Process(context.Background(), memory.Job{Gateway: newGateway(client), SceneLabel: "第1幕", Turns: exchange()})
	var mergeErr *memorymodel.MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("expected MergeError, got %v", err)
	}
	if len(svc.Snapshot().Inventory) != 0 {
		t.Fatal("a rejected delta must not be partially applied")
	}
	if ev, ok := rec.Last(event.KindError); !ok || ev.Error.Kind != event.ErrMerge {
		t.Fatalf("expected merge error event, got %+v", ev)
	}
}

func TestProcessTransportFailure(t *testing.T) {
	client := llm.NewMockClient().Fail(&llm.TransportError{Err: errors.New("dial tcp: refused")})
	rec := &events.Recorder{}
	svc := newService(memstore.New(), rec)

	if _, err := svc.Process(context.Background(), memory.Job{Gateway: newGateway(client), SceneLabel: "第1幕", Turns: exchange()}); err == nil {
		t.Fatal("expected error")
	}
	if ev, ok := rec.Last(event.KindError); !ok || ev.Error.Kind != event.ErrTransport {
		t.Fatalf("expected transport error event, got %+v", ev)
	}
}

func TestWorkerSerializesQueuedJobs(t *testing.T) {
	client := llm.NewMockClient(
		`{"new_inventory":["a"]}`,
		`{"new_inventory":["b"]}`,
		`{"new_inventory":["c"]}`,
	)
	svc := newService(memstore.New(), &events.Recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Close()

	gateway := newGateway(client)
	for i := 0; i < 3; i++ {
		if err := svc.Enqueue(memory.Job{Gateway: gateway, SceneLabel: "第1幕", Turns: exchange()}); err != nil {
			t.Fatalf("Enqueue %d err: %v", i, err)
		}
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 5*time.Second)
	defer flushCancel()
	if err := svc.Flush(flushCtx); err != nil {
		t.Fatalf("Flush err: %v", err)
	}

	got := strings.Join(svc.Snapshot().Inventory, ",")
	if got != "a,b,c" {
		t.Fatalf("unexpected inventory order: %s", got)
	}
}

func TestCloseDrainsQueueAfterCancel(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	client := llm.NewMockClient()
	client.Handler = func(ctx context.Context, _ llm.Request) (string, error) {
		time.Sleep(10 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return "", &llm.TransportError{Err: err}
		}
		mu.Lock()
		defer mu.Unlock()
		calls++
		return fmt.Sprintf(`{"new_inventory":["item-%d"]}`, calls), nil
	}

	rec := &events.Recorder{}
	store := memstore.New()
	svc := newService(store, rec)
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	gateway := newGateway(client)
	for i := 0; i < 5; i++ {
		if err := svc.Enqueue(memory.Job{Gateway: gateway, SceneLabel: "第1幕", Turns: exchange()}); err != nil {
			t.Fatalf("Enqueue %d err: %v", i, err)
		}
	}
	cancel()
	svc.Close()

	if client.CallCount() != 5 {
		t.Fatalf("expected every queued job to reach the model, got %d calls", client.CallCount())
	}
	if got := len(svc.Snapshot().Inventory); got != 5 {
		t.Fatalf("expected 5 merged items, got %d", got)
	}
	if store.Saves() != 5 {
		t.Fatalf("expected 5 saves, got %d", store.Saves())
	}
	if _, ok := rec.Last(event.KindError); ok {
		t.Fatalf("unexpected error events: %+v", rec.Events())
	}
}

func TestCloseWithoutWorkerReportsQueuedJobs(t *testing.T) {
	rec := &events.Recorder{}
	svc := memory.NewService(memory.Options{QueueSize: 4, Emitter: rec})

	for i := 0; i < 2; i++ {
		if err := svc.Enqueue(memory.Job{SceneLabel: "第1幕"}); err != nil {
			t.Fatalf("Enqueue %d err: %v", i, err)
		}
	}
	svc.Close()

	errs := 0
	for _, ev := range rec.Events() {
		if ev.Kind == event.KindError {
			errs++
		}
	}
	if errs != 2 {
		t.Fatalf("expected 2 error events for abandoned jobs, got %d", errs)
	}
}

func TestEnqueueQueueFullAndClosed(t *testing.T) {
	svc := memory.NewService(memory.Options{QueueSize: 1})
	job := memory.Job{SceneLabel: "第1幕"}

	if err := svc.Enqueue(job); err != nil {
		t.Fatalf("first Enqueue err: %v", err)
	}
	if err := svc.Enqueue(job); !errors.Is(err, memory.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	svc.Close()
	if err := svc.Enqueue(job); !errors.Is(err, memory.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLoadAndReset(t *testing.T) {
	store := memstore.New()
	stored := memorymodel.NewProfile()
	stored.Inventory = []string{"lamp"}
	if err := store.Save(context.Background(), stored); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	svc := newService(store, &events.Recorder{})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if got := svc.Snapshot().Inventory; len(got) != 1 || got[0] != "lamp" {
		t.Fatalf("unexpected loaded inventory: %v", got)
	}

	if err := svc.Reset(context.Background()); err != nil {
		t.Fatalf("Reset err: %v", err)
	}
	if !svc.Snapshot().IsEmpty() {
		t.Fatal("profile should be empty after reset")
	}
	if _, ok, _ := store.Load(context.Background()); ok {
		t.Fatal("store should be cleared")
	}
}
