package module

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset is a named, ready-to-use module configuration offered to the frontend.
type Preset struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Modules     Set    `json:"modules" yaml:"modules"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets 从 YAML 文件读取预设，与 Seed 中同 ID 的预设会被覆盖。
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets yaml: %w", err)
	}

	for i, preset := range file.Presets {
		if preset.ID == "" {
			return nil, fmt.Errorf("preset %d: id is required", i)
		}
		if err := preset.Modules.Validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", preset.ID, err)
		}
		file.Presets[i].Modules = preset.Modules.Normalized()
	}
	return mergePresets(Seed(), file.Presets), nil
}

func mergePresets(base, overrides []Preset) []Preset {
	out := append([]Preset(nil), base...)
	for _, override := range overrides {
		replaced := false
		for i := range out {
			if out[i].ID == override.ID {
				out[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, override)
		}
	}
	return out
}

// Seed provides the default presets.
func Seed() []Preset {
	return []Preset{
		{
			ID:          "tavern-json",
			Name:        "酒馆群像（JSON）",
			Description: "五个模块全部启用，统一使用 JSON 输出，解析最稳定。",
			Modules: Set{
				Dialogue: {SystemPrompt: dialoguePrompt, JSONMode: true, Enabled: true},
				Summary:  {SystemPrompt: summaryPrompt, Enabled: true},
				Story:    {SystemPrompt: storyPrompt, JSONMode: true, Enabled: true},
				Memory:   {SystemPrompt: memoryPrompt, JSONMode: true, Enabled: true},
				Letter:   {SystemPrompt: letterPrompt, JSONMode: true, Enabled: true},
			},
		},
		{
			ID:          "tavern-text",
			Name:        "酒馆群像（文本）",
			Description: "对话与故事使用文本格式，不启用记忆与来信。",
			Modules: Set{
				Dialogue: {SystemPrompt: dialoguePrompt, Enabled: true},
				Summary:  {SystemPrompt: summaryPrompt, Enabled: true},
				Story:    {SystemPrompt: storyPrompt, Enabled: true},
				Memory:   {SystemPrompt: memoryPrompt, JSONMode: true},
				Letter:   {SystemPrompt: letterPrompt},
			},
		},
	}
}

const (
	dialoguePrompt = "你是一位互动小说的 NPC 导演，负责扮演场景中的所有 NPC。每个 NPC 都有自己的性格与目标，" +
		"只让与玩家发言相关的 NPC 回应，台词简洁自然，不替玩家做决定，不跳出故事。"
	summaryPrompt = "你是一位故事编辑。阅读本幕的故事背景、NPC 目标与完整聊天记录，用不超过三百字客观总结本幕发生的事情，" +
		"包括玩家的关键选择与 NPC 态度的变化。"
	storyPrompt = "你是一位故事作者。根据上一幕的总结续写下一幕的开场，保持人物性格与目标一致，" +
		"并为一位主要 NPC 设计开场台词与动作。"
	memoryPrompt = "你是玩家记忆的记录员。只根据本轮新增的对话提取玩家透露或经历的新信息，已有档案中存在的内容不要重复输出。" +
		"没有新信息的字段输出空数组或空字符串。"
	letterPrompt = "你是一位书信作者。本幕结束后，挑选一位与玩家关系最深的 NPC，以第一人称给玩家写一封简短的信，" +
		"信中体现本幕发生的事情与 NPC 的真实情感。"
)
