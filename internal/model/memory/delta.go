package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Delta 是记忆模块产出的增量更新文档。
type Delta struct {
	PlayerInfo          PlayerInfoUpdate              `json:"player_info_updates"`
	NewKeyFacts         []FactEntry                   `json:"new_key_facts"`
	RelationshipUpdates map[string]RelationshipUpdate `json:"relationship_updates"`
	NewGoalsAndPromises []GoalEntry                   `json:"new_goals_and_promises"`
	NewImportantEvents  []EventEntry                  `json:"new_important_events"`
	NewInventory        []string                      `json:"new_inventory"`
	NewSkills           []string                      `json:"new_skills"`
	NewSecrets          []string                      `json:"new_secrets"`
}

// PlayerInfoUpdate 中为空或占位的字段不会覆盖已有值。
type PlayerInfoUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Background  string `json:"background"`
}

// FactEntry accepts either {"fact": "..."} or a bare string.
type FactEntry struct {
	Fact string `json:"fact"`
}

func (f *FactEntry) UnmarshalJSON(data []byte) error {
	if text, ok := decodeBareString(data); ok {
		f.Fact = text
		return nil
	}
	type plain FactEntry
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FactEntry(v)
	return nil
}

// EventEntry accepts either {"event": "...", "impact": "..."} or a bare string.
type EventEntry struct {
	Event  string `json:"event"`
	Impact string `json:"impact"`
}

func (e *EventEntry) UnmarshalJSON(data []byte) error {
	if text, ok := decodeBareString(data); ok {
		e.Event = text
		return nil
	}
	type plain EventEntry
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = EventEntry(v)
	return nil
}

// GoalEntry 是新增的目标或承诺，状态必须由模型显式给出。
type GoalEntry struct {
	Kind       string `json:"type"`
	Content    string `json:"content"`
	RelatedNpc string `json:"related_npc"`
	Status     string `json:"status"`
}

// RelationshipUpdate 只覆盖模型明确给出的字段。
type RelationshipUpdate struct {
	Relationship    string      `json:"relationship"`
	TrustLevel      *TrustLevel `json:"trust_level"`
	NewInteractions []string    `json:"new_interactions"`
	Interaction     string      `json:"interaction"`
}

// Interactions merges the single and list forms, dropping blanks.
func (u RelationshipUpdate) Interactions() []string {
	out := make([]string, 0, len(u.NewInteractions)+1)
	for _, item := range u.NewInteractions {
		if !IsNoValue(item) {
			out = append(out, strings.TrimSpace(item))
		}
	}
	if !IsNoValue(u.Interaction) {
		out = append(out, strings.TrimSpace(u.Interaction))
	}
	return out
}

// TrustLevel decodes a JSON number or numeric string. Fractional values are
// rounded and out-of-range values are clamped to [MinTrustLevel, MaxTrustLevel].
type TrustLevel int

func (t *TrustLevel) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	raw := string(trimmed)
	if text, ok := decodeBareString(trimmed); ok {
		raw = strings.TrimSpace(text)
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid trust_level %q: %w", raw, err)
	}
	if math.IsNaN(val) {
		return fmt.Errorf("invalid trust_level %q", raw)
	}
	// clamp before the int conversion, which overflows for huge values
	val = math.Max(MinTrustLevel, math.Min(MaxTrustLevel, val))
	*t = TrustLevel(math.Round(val))
	return nil
}

// IsEmpty 报告增量是否不包含任何更新。
func (d Delta) IsEmpty() bool {
	return d.PlayerInfo == (PlayerInfoUpdate{}) &&
		len(d.NewKeyFacts) == 0 &&
		len(d.RelationshipUpdates) == 0 &&
		len(d.NewGoalsAndPromises) == 0 &&
		len(d.NewImportantEvents) == 0 &&
		len(d.NewInventory) == 0 &&
		len(d.NewSkills) == 0 &&
		len(d.NewSecrets) == 0
}

var noValueMarkers = []string{"null", "none", "无", "未知", "暂无", "n/a"}

// IsNoValue reports whether a delta value is blank or a "no value" marker.
func IsNoValue(value string) bool {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return true
	}
	for _, marker := range noValueMarkers {
		if normalized == marker {
			return true
		}
	}
	return false
}

func decodeBareString(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return "", false
	}
	return text, true
}
