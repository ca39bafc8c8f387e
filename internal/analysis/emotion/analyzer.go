package emotion

import (
	"strings"
)

// Label 表示 NPC 台词可携带的情绪动画标签。
type Label string

const (
	Happy        Label = "高兴"
	Sad          Label = "难过"
	Disappointed Label = "失望"
	Excited      Label = "振奋"
	Despair      Label = "绝望"
	Crazy        Label = "疯狂"
	Hopeful      Label = "希望"
	Calm         Label = "平静"
	Unmatched    Label = ""
)

// Default 是无法识别台词时使用的情绪。
const Default = Calm

// Labels 按固定顺序返回全部合法标签。
func Labels() []Label {
	return []Label{Happy, Sad, Disappointed, Excited, Despair, Crazy, Hopeful, Calm}
}

var synonymBuckets = map[Label][]string{
	Happy:        {"开心", "快乐", "喜悦", "愉快", "欢喜", "happy", "joy", "glad"},
	Sad:          {"伤心", "悲伤", "沮丧", "哀伤", "低落", "sad", "sorrow", "upset"},
	Disappointed: {"失落", "遗憾", "不满", "disappointed", "letdown"},
	Excited:      {"激动", "兴奋", "热血", "鼓舞", "excited", "inspired", "thrilled"},
	Despair:      {"心死", "崩溃", "无望", "despair", "hopeless"},
	Crazy:        {"癫狂", "狂怒", "愤怒", "暴怒", "crazy", "mad", "insane", "furious"},
	Hopeful:      {"期待", "憧憬", "期盼", "hope", "hopeful"},
	Calm:         {"冷静", "淡定", "平和", "平淡", "中立", "calm", "neutral", "peaceful"},
}

// Normalize 将模型给出的情绪文本归一为合法标签。
// 支持标签本身、常见同义词与英文名，忽略首尾空白与大小写；无法识别时返回 false。
func Normalize(raw string) (Label, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.Trim(normalized, "[]【】()（）")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return Unmatched, false
	}

	for _, label := range Labels() {
		if normalized == string(label) {
			return label, true
		}
	}

	for _, label := range Labels() {
		for _, word := range synonymBuckets[label] {
			if normalized == word {
				return label, true
			}
		}
	}

	return Unmatched, false
}

// Valid 报告 label 是否属于合法标签集合。
func Valid(label Label) bool {
	for _, candidate := range Labels() {
		if candidate == label {
			return true
		}
	}
	return false
}
