package memory_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
)

var mergeTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func decodeDelta(t *testing.T, raw string) memory.Delta {
	t.Helper()
	var delta memory.Delta
	if err := json.Unmarshal([]byte(raw), &delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	return delta
}

func TestMergeInventoryIsIdempotent(t *testing.T) {
	delta := decodeDelta(t, `{"new_inventory":["key"],"new_skills":["lockpick"],"new_secrets":["the mayor lies"]}`)

	profile := memory.NewProfile()
	for i := 0; i < 2; i++ {
		var err error
		profile, err = memory.Merge(profile, delta, mergeTime, "第1幕")
		if err != nil {
			t.Fatalf("Merge err: %v", err)
		}
	}

	if len(profile.Inventory) != 1 || profile.Inventory[0] != "key" {
		t.Fatalf("unexpected inventory: %v", profile.Inventory)
	}
	if len(profile.Skills) != 1 || len(profile.Secrets) != 1 {
		t.Fatalf("unexpected skills/secrets: %v %v", profile.Skills, profile.Secrets)
	}
}

func TestMergeKeyFactsAppend(t *testing.T) {
	delta := decodeDelta(t, `{"new_key_facts":[{"fact":"X"}],"new_important_events":[{"event":"fire","impact":"tavern closed"}]}`)

	profile := memory.NewProfile()
	for i := 0; i < 2; i++ {
		var err error
		profile, err = memory.Merge(profile, delta, mergeTime, "第2幕")
		if err != nil {
			t.Fatalf("Merge err: %v", err)
		}
	}

	if len(profile.KeyFacts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(profile.KeyFacts))
	}
	for _, fact := range profile.KeyFacts {
		if fact.Fact != "X" || fact.Scene != "第2幕" || !fact.Timestamp.Equal(mergeTime) {
			t.Fatalf("unexpected fact: %+v", fact)
		}
	}
	if len(profile.ImportantEvents) != 2 || profile.ImportantEvents[0].Impact != "tavern closed" {
		t.Fatalf("unexpected events: %+v", profile.ImportantEvents)
	}
}

func TestMergeNewRelationshipUsesDefaults(t *testing.T) {
	delta := decodeDelta(t, `{"relationship_updates":{"Bob":{"trust_level":9}}}`)

	profile, err := memory.Merge(memory.NewProfile(), delta, mergeTime, "第1幕")
	if err != nil {
		t.Fatalf("Merge err: %v", err)
	}

	bob, ok := profile.Relationships["Bob"]
	if !ok {
		t.Fatal("expected Bob relationship")
	}
	if bob.Relationship != "中立" || bob.TrustLevel != 9 || len(bob.RecentInteractions) != 0 {
		t.Fatalf("unexpected relationship: %+v", bob)
	}
}

func TestMergeTrustLevelOutOfRangeIsClamped(t *testing.T) {
	cases := map[string]int{
		`1e20`:                 memory.MaxTrustLevel,
		`"1e20"`:               memory.MaxTrustLevel,
		`99999999999999999999`: memory.MaxTrustLevel,
		`"Inf"`:                memory.MaxTrustLevel,
		`-1e20`:                memory.MinTrustLevel,
		`"-Inf"`:               memory.MinTrustLevel,
		`7.6`:                  8,
	}
	for raw, want := range cases {
		delta := decodeDelta(t, `{"relationship_updates":{"Bob":{"trust_level":`+raw+`}}}`)
		profile, err := memory.Merge(memory.NewProfile(), delta, mergeTime, "第1幕")
		if err != nil {
			t.Fatalf("Merge(%s) err: %v", raw, err)
		}
		if got := profile.Relationships["Bob"].TrustLevel; got != want {
			t.Fatalf("trust_level %s: got %d want %d", raw, got, want)
		}
	}
}

func TestDecodeTrustLevelRejectsNaN(t *testing.T) {
	var delta memory.Delta
	err := json.Unmarshal([]byte(`{"relationship_updates":{"Bob":{"trust_level":"NaN"}}}`), &delta)
	if err == nil {
		t.Fatal("expected NaN trust_level to be rejected")
	}
}

func TestMergeRelationshipOverwritesOnlySuppliedFields(t *testing.T) {
	profile := memory.NewProfile()
	profile.Relationships["Aria"] = memory.Relationship{Relationship: "朋友", TrustLevel: 7, RecentInteractions: []string{"shared bread"}}

	delta := decodeDelta(t, `{"relationship_updates":{"Aria":{"relationship":"","trust_level":"42","interaction":"lied to her"}}}`)
	got, err := memory.Merge(profile, delta, mergeTime, "第3幕")
	if err != nil {
		t.Fatalf("Merge err: %v", err)
	}

	aria := got.Relationships["Aria"]
	if aria.Relationship != "朋友" {
		t.Fatalf("relationship should be kept, got %q", aria.Relationship)
	}
	if aria.TrustLevel != memory.MaxTrustLevel {
		t.Fatalf("trust should be clamped, got %d", aria.TrustLevel)
	}
	if len(aria.RecentInteractions) != 2 || aria.RecentInteractions[1] != "lied to her" {
		t.Fatalf("unexpected interactions: %v", aria.RecentInteractions)
	}
	if len(profile.Relationships["Aria"].RecentInteractions) != 1 {
		t.Fatal("input profile must not be modified")
	}
}

func TestMergeRecentInteractionsCapped(t *testing.T) {
	profile := memory.NewProfile()
	for i := 0; i < 12; i++ {
		delta := decodeDelta(t, fmt.Sprintf(`{"relationship_updates":{"Bob":{"new_interactions":["event-%02d"]}}}`, i))
		var err error
		profile, err = memory.Merge(profile, delta, mergeTime, "第1幕")
		if err != nil {
			t.Fatalf("Merge err: %v", err)
		}
	}

	got := profile.Relationships["Bob"].RecentInteractions
	if len(got) != memory.MaxRecentInteractions {
		t.Fatalf("expected %d interactions, got %d", memory.MaxRecentInteractions, len(got))
	}
	if got[0] != "event-02" || got[9] != "event-11" {
		t.Fatalf("expected oldest entries dropped, got %v", got)
	}
}

func TestMergePlayerInfoIgnoresBlankValues(t *testing.T) {
	profile := memory.NewProfile()
	profile.PlayerInfo = memory.PlayerInfo{Name: "林", Background: "铁匠之子"}

	delta := decodeDelta(t, `{"player_info_updates":{"name":"","background":"未知","personality":"谨慎"}}`)
	got, err := memory.Merge(profile, delta, mergeTime, "第1幕")
	if err != nil {
		t.Fatalf("Merge err: %v", err)
	}

	want := memory.PlayerInfo{Name: "林", Background: "铁匠之子", Personality: "谨慎"}
	if got.PlayerInfo != want {
		t.Fatalf("unexpected player info: %+v", got.PlayerInfo)
	}
}

func TestMergeGoalsAppendedWithExplicitStatus(t *testing.T) {
	delta := decodeDelta(t, `{"new_goals_and_promises":[{"type":"承诺","content":"护送 Aria 出城","related_npc":"Aria","status":"active"},{"type":"goal","content":"找到钥匙","status":"completed"}]}`)

	got, err := memory.Merge(memory.NewProfile(), delta, mergeTime, "第4幕")
	if err != nil {
		t.Fatalf("Merge err: %v", err)
	}
	if len(got.GoalsAndPromises) != 2 {
		t.Fatalf("expected 2 goals, got %d", len(got.GoalsAndPromises))
	}
	first := got.GoalsAndPromises[0]
	if first.Kind != memory.KindPromise || first.RelatedNpc != "Aria" || first.Status != memory.StatusActive || first.Scene != "第4幕" {
		t.Fatalf("unexpected first goal: %+v", first)
	}
	if got.GoalsAndPromises[1].Status != memory.StatusCompleted {
		t.Fatalf("unexpected second goal: %+v", got.GoalsAndPromises[1])
	}
}

func TestMergeMalformedDeltaLeavesProfileUnchanged(t *testing.T) {
	profile := memory.NewProfile()
	profile.Inventory = []string{"torch"}

	delta := decodeDelta(t, `{"new_inventory":["rope"],"new_key_facts":["fact"],"new_goals_and_promises":[{"type":"wish","content":"fly"}]}`)
	got, err := memory.Merge(profile, delta, mergeTime, "第1幕")

	var mergeErr *memory.MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("expected MergeError, got %v", err)
	}
	if len(got.Inventory) != 1 || len(got.KeyFacts) != 0 {
		t.Fatalf("profile must be unchanged: %+v", got)
	}
}

func TestMergeRejectsBlankNpcName(t *testing.T) {
	delta := decodeDelta(t, `{"relationship_updates":{" ":{"trust_level":3}}}`)
	if _, err := memory.Merge(memory.NewProfile(), delta, mergeTime, "第1幕"); err == nil {
		t.Fatal("expected error for blank npc name")
	}
}
