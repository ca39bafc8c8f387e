package module

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSeedPresetsAreValid(t *testing.T) {
	for _, preset := range Seed() {
		if err := preset.Modules.Validate(); err != nil {
			t.Fatalf("preset %s invalid: %v", preset.ID, err)
		}
	}
}

func TestValidateRequiresPromptForEnabledModules(t *testing.T) {
	set := Set{
		Dialogue: {SystemPrompt: "d"},
		Summary:  {SystemPrompt: "s"},
		Story:    {SystemPrompt: "st"},
		Letter:   {Enabled: true},
	}
	err := set.Validate()

	var invalid *InvalidError
	if !errors.As(err, &invalid) || invalid.Module != Letter {
		t.Fatalf("expected letter module error, got %v", err)
	}

	set[Letter] = Settings{}
	if err := set.Validate(); err != nil {
		t.Fatalf("disabled module without prompt should pass: %v", err)
	}

	delete(set, Summary)
	if err := set.Validate(); err == nil {
		t.Fatal("expected missing summary module error")
	}
}

func TestNormalizedEnablesRequiredModules(t *testing.T) {
	set := Set{Dialogue: {SystemPrompt: "  d  "}}.Normalized()

	if !set[Dialogue].Enabled || !set[Summary].Enabled || !set[Story].Enabled {
		t.Fatalf("required modules must be enabled: %+v", set)
	}
	if set[Memory].Enabled || set.Enabled(Letter) {
		t.Fatal("optional modules must stay disabled")
	}
	if set[Dialogue].SystemPrompt != "d" {
		t.Fatalf("prompt should be trimmed, got %q", set[Dialogue].SystemPrompt)
	}
}

func TestLoadPresetsOverridesSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	content := `presets:
  - id: tavern-json
    name: 自定义
    modules:
      dialogue: {system_prompt: "新的对话提示", json_mode: true}
      summary: {system_prompt: "总结"}
      story: {system_prompt: "故事"}
  - id: noir
    name: 黑色侦探
    modules:
      dialogue: {system_prompt: "侦探"}
      summary: {system_prompt: "总结"}
      story: {system_prompt: "故事"}
      memory: {system_prompt: "记忆", json_mode: true, enabled: true}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write presets: %v", err)
	}

	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets err: %v", err)
	}
	store := NewMemoryStore(presets)

	custom, ok := store.FindByID("tavern-json")
	if !ok || custom.Name != "自定义" || custom.Modules[Dialogue].SystemPrompt != "新的对话提示" {
		t.Fatalf("expected overridden preset, got %+v", custom)
	}
	if !custom.Modules[Summary].Enabled {
		t.Fatal("required module should be enabled after load")
	}
	noir, ok := store.FindByID("noir")
	if !ok || !noir.Modules.Enabled(Memory) {
		t.Fatalf("expected added preset with memory enabled, got %+v", noir)
	}
	if len(store.List()) != len(Seed())+1 {
		t.Fatalf("unexpected preset count %d", len(store.List()))
	}
}

func TestLoadPresetsRejectsInvalidModules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	content := "presets:\n  - id: broken\n    modules:\n      dialogue: {system_prompt: \"\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write presets: %v", err)
	}
	if _, err := LoadPresets(path); err == nil {
		t.Fatal("expected validation error")
	}
}
