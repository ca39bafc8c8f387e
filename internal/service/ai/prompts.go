package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/emotion"
	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/history"
)

// PlayerPrefix marks player lines sent to the dialogue module.
const PlayerPrefix = "玩家："

// memoryContextFacts bounds how many recent facts and events are injected.
const memoryContextFacts = 8

// SceneContext is the scene information shared by every module prompt.
type SceneContext struct {
	StorySummary string
	NpcList      string
	NpcGoals     string
}

func emotionChoices() string {
	labels := emotion.Labels()
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, string(label))
	}
	return strings.Join(names, "、")
}

// DialogueContext builds the first user message of a dialogue request.
func DialogueContext(sc SceneContext, jsonMode bool, memoryContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "故事背景：%s\n\nNPC列表：%s\n\nNPC目标：%s\n\n", sc.StorySummary, sc.NpcList, sc.NpcGoals)
	if memoryContext != "" {
		b.WriteString("玩家档案：\n")
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}
	b.WriteString("请根据上述信息和对话历史，决定让几个NPC回应（1个、2个或更多都可以，要符合实际情况）。\n")
	b.WriteString("记住之前的对话内容，保持对话的连贯性和一致性。\n\n返回格式：\n")
	if jsonMode {
		fmt.Fprintf(&b, `JSON格式：
{
  "responses": [
    {"npc_name": "NPC名字", "content": "说话内容", "emotion": "情绪动画（%s）"}
  ]
}
注意：responses数组中只包含需要回应的NPC，数量可以是1个或多个。`, strings.ReplaceAll(emotionChoices(), "、", "/"))
	} else {
		fmt.Fprintf(&b, "每个回应的NPC一行，格式：[NPC名字] 说话内容 [情绪：情绪动画]\n情绪动画从以下选择：%s\n注意：不是所有NPC都要回应，只返回需要说话的NPC。", emotionChoices())
	}
	return b.String()
}

// DialogueRequest lays out a dialogue turn: the scene context first, the
// recent window in order, then the new player line.
func DialogueRequest(context string, window []scene.Turn, playerLine string) Request {
	history := make([]*schema.Message, 0, len(window)+1)
	history = append(history, schema.UserMessage(context))
	for _, turn := range window {
		switch turn.Speaker {
		case scene.SpeakerPlayer:
			history = append(history, schema.UserMessage(PlayerPrefix+turn.Content))
		case scene.SpeakerNPC:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return Request{Module: module.Dialogue, History: history, Text: PlayerPrefix + playerLine}
}

// GreetingPrompt asks the dialogue module for the scene's opening line.
func GreetingPrompt(sc SceneContext, jsonMode bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "故事背景：%s\n\nNPC列表：%s\n\nNPC目标：%s\n\n", sc.StorySummary, sc.NpcList, sc.NpcGoals)
	b.WriteString("新的一幕开始了，玩家刚刚到来。请选择一位最合适的NPC向玩家说一句开场问候。\n\n返回格式：\n")
	if jsonMode {
		fmt.Fprintf(&b, `JSON格式：
{"npc_name": "NPC名字", "content": "问候内容", "emotion": "情绪动画（%s）"}`, strings.ReplaceAll(emotionChoices(), "、", "/"))
	} else {
		fmt.Fprintf(&b, "只输出一行：[NPC名字] 问候内容 [情绪：情绪动画]\n情绪动画从以下选择：%s", emotionChoices())
	}
	return b.String()
}

// SummaryPrompt asks for a summary of the complete transcript.
func SummaryPrompt(sc SceneContext, transcript string) string {
	return fmt.Sprintf("故事背景：%s\n\nNPC目标：%s\n\n聊天记录：\n%s\n\n请总结当前场景的故事发展。", sc.StorySummary, sc.NpcGoals, transcript)
}

// StoryPrompt asks for the next scene and an NPC opening line.
func StoryPrompt(summary string, sc SceneContext, jsonMode bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "上一幕的故事总结：%s\n\nNPC列表：%s\n\nNPC的目标：%s\n\n", summary, sc.NpcList, sc.NpcGoals)
	b.WriteString("请根据上述信息：\n1. 续写下一幕发生的事情\n2. 生成一个主要NPC的初始对话（包括NPC名字、对话内容、动作描述）\n\n")
	if jsonMode {
		b.WriteString(`返回JSON格式：
{
  "scene_description": "下一幕的场景描述",
  "npc_dialogue": {
    "npc_name": "NPC名字",
    "content": "对话内容",
    "action": "动作描述"
  }
}`)
	} else {
		b.WriteString("返回格式：\n【场景描述】\n下一幕的场景描述...\n\n【NPC初始对话】\nNPC名字：对话内容\n动作：动作描述")
	}
	return b.String()
}

// LetterPrompt asks for a letter from one NPC to the player.
func LetterPrompt(sc SceneContext, summary, transcript string, jsonMode bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "故事背景：%s\n\nNPC列表：%s\n\n本幕总结：%s\n\n聊天记录：\n%s\n\n", sc.StorySummary, sc.NpcList, summary, transcript)
	b.WriteString("请挑选一位NPC，以第一人称给玩家写一封信。\n\n")
	if jsonMode {
		b.WriteString(`返回JSON格式：
{"npc_name": "写信的NPC名字", "content": "信件正文"}`)
	} else {
		b.WriteString("返回格式：\n【来信者】NPC名字\n【信件内容】\n信件正文")
	}
	return b.String()
}

// MemoryPrompt asks for a delta describing what the two new turns add to profile.
func MemoryPrompt(profile memorymodel.Profile, sceneLabel string, turns []scene.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "当前场景：%s\n\n已有玩家档案：\n", sceneLabel)
	if ctx := FormatMemoryContext(profile); ctx != "" {
		b.WriteString(ctx)
	} else {
		b.WriteString("（空）")
	}
	b.WriteString("\n\n本轮新增对话：\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "%s：%s\n", history.Label(turn.Speaker), turn.Content)
	}
	b.WriteString(`
请只提取本轮对话中新出现的信息，返回JSON格式：
{
  "player_info_updates": {"name": "", "description": "", "personality": "", "background": ""},
  "new_key_facts": [{"fact": "事实"}],
  "relationship_updates": {
    "NPC名字": {"relationship": "关系描述", "trust_level": 5, "new_interactions": ["互动描述"]}
  },
  "new_goals_and_promises": [
    {"type": "goal 或 promise", "content": "内容", "related_npc": "相关NPC", "status": "active/completed/failed"}
  ],
  "new_important_events": [{"event": "事件", "impact": "影响"}],
  "new_inventory": [],
  "new_skills": [],
  "new_secrets": []
}
没有变化的字段请留空；trust_level 取值 0 到 10。`)
	return b.String()
}

// FormatMemoryContext renders a compact Chinese summary of the profile. An
// empty profile yields "".
func FormatMemoryContext(profile memorymodel.Profile) string {
	if profile.IsEmpty() {
		return ""
	}

	var lines []string
	info := profile.PlayerInfo
	var infoParts []string
	for _, field := range []struct{ label, value string }{
		{"姓名", info.Name},
		{"描述", info.Description},
		{"性格", info.Personality},
		{"背景", info.Background},
	} {
		if field.value != "" {
			infoParts = append(infoParts, field.label+"："+field.value)
		}
	}
	if len(infoParts) > 0 {
		lines = append(lines, "玩家信息："+strings.Join(infoParts, "；"))
	}

	if facts := lastFacts(profile.KeyFacts); len(facts) > 0 {
		lines = append(lines, "关键事实："+strings.Join(facts, "；"))
	}

	if len(profile.Relationships) > 0 {
		names := make([]string, 0, len(profile.Relationships))
		for name := range profile.Relationships {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			rel := profile.Relationships[name]
			parts = append(parts, fmt.Sprintf("%s（%s，信任度%d）", name, rel.Relationship, rel.TrustLevel))
		}
		lines = append(lines, "人际关系："+strings.Join(parts, "；"))
	}

	var active []string
	for _, goal := range profile.GoalsAndPromises {
		if goal.Status != memorymodel.StatusActive {
			continue
		}
		label := "目标"
		if goal.Kind == memorymodel.KindPromise {
			label = "承诺"
		}
		entry := label + "：" + goal.Content
		if goal.RelatedNpc != "" {
			entry += "（" + goal.RelatedNpc + "）"
		}
		active = append(active, entry)
	}
	if len(active) > 0 {
		lines = append(lines, "进行中："+strings.Join(active, "；"))
	}

	if events := lastEvents(profile.ImportantEvents); len(events) > 0 {
		lines = append(lines, "重要事件："+strings.Join(events, "；"))
	}
	if len(profile.Inventory) > 0 {
		lines = append(lines, "物品："+strings.Join(profile.Inventory, "、"))
	}
	if len(profile.Skills) > 0 {
		lines = append(lines, "技能："+strings.Join(profile.Skills, "、"))
	}
	if len(profile.Secrets) > 0 {
		lines = append(lines, "秘密："+strings.Join(profile.Secrets, "、"))
	}
	return strings.Join(lines, "\n")
}

func lastFacts(facts []memorymodel.KeyFact) []string {
	start := len(facts) - memoryContextFacts
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(facts)-start)
	for _, fact := range facts[start:] {
		out = append(out, fact.Fact)
	}
	return out
}

func lastEvents(events []memorymodel.ImportantEvent) []string {
	start := len(events) - memoryContextFacts
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(events)-start)
	for _, event := range events[start:] {
		out = append(out, event.Event)
	}
	return out
}
