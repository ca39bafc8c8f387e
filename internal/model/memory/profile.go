package memory

import (
	"time"
)

const (
	// MaxRecentInteractions bounds Relationship.RecentInteractions; oldest entries are dropped.
	MaxRecentInteractions = 10
	MinTrustLevel         = 0
	MaxTrustLevel         = 10
	DefaultTrustLevel     = 5
	DefaultRelationship   = "中立"
)

// PlayerInfo 是玩家自我披露的基本信息，空字符串表示尚未知晓。
type PlayerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Background  string `json:"background"`
}

// KeyFact 是玩家透露或经历的关键事实。
type KeyFact struct {
	Fact      string    `json:"fact"`
	Scene     string    `json:"scene"`
	Timestamp time.Time `json:"timestamp"`
}

// Relationship 描述玩家与某个 NPC 的关系。
type Relationship struct {
	Relationship       string   `json:"relationship"`
	TrustLevel         int      `json:"trust_level"`
	RecentInteractions []string `json:"recent_interactions"`
}

// GoalKind 区分目标与承诺。
type GoalKind string

const (
	KindGoal    GoalKind = "goal"
	KindPromise GoalKind = "promise"
)

// GoalStatus 是目标或承诺的当前状态。
type GoalStatus string

const (
	StatusActive    GoalStatus = "active"
	StatusCompleted GoalStatus = "completed"
	StatusFailed    GoalStatus = "failed"
)

// Goal 是玩家设定的目标或做出的承诺。
type Goal struct {
	Kind       GoalKind   `json:"type"`
	Content    string     `json:"content"`
	RelatedNpc string     `json:"related_npc,omitempty"`
	Status     GoalStatus `json:"status"`
	Scene      string     `json:"scene"`
}

// ImportantEvent 是对剧情有影响的事件。
type ImportantEvent struct {
	Event     string    `json:"event"`
	Scene     string    `json:"scene"`
	Impact    string    `json:"impact,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile 是跨场景持久化的玩家记忆档案。
// 所有修改都应通过合并引擎完成，不直接写入模型输出。
type Profile struct {
	PlayerInfo       PlayerInfo              `json:"player_info"`
	KeyFacts         []KeyFact               `json:"key_facts"`
	Relationships    map[string]Relationship `json:"relationships"`
	GoalsAndPromises []Goal                  `json:"goals_and_promises"`
	ImportantEvents  []ImportantEvent        `json:"important_events"`
	Inventory        []string                `json:"inventory"`
	Skills           []string                `json:"skills"`
	Secrets          []string                `json:"secrets"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// NewProfile 返回一个空档案，集合与映射均已初始化。
func NewProfile() Profile {
	return Profile{
		KeyFacts:         []KeyFact{},
		Relationships:    map[string]Relationship{},
		GoalsAndPromises: []Goal{},
		ImportantEvents:  []ImportantEvent{},
		Inventory:        []string{},
		Skills:           []string{},
		Secrets:          []string{},
	}
}

// Clone 返回档案的深拷贝。
func (p Profile) Clone() Profile {
	out := Profile{
		PlayerInfo:       p.PlayerInfo,
		KeyFacts:         append([]KeyFact{}, p.KeyFacts...),
		Relationships:    make(map[string]Relationship, len(p.Relationships)),
		GoalsAndPromises: append([]Goal{}, p.GoalsAndPromises...),
		ImportantEvents:  append([]ImportantEvent{}, p.ImportantEvents...),
		Inventory:        append([]string{}, p.Inventory...),
		Skills:           append([]string{}, p.Skills...),
		Secrets:          append([]string{}, p.Secrets...),
		UpdatedAt:        p.UpdatedAt,
	}
	for name, rel := range p.Relationships {
		rel.RecentInteractions = append([]string{}, rel.RecentInteractions...)
		out.Relationships[name] = rel
	}
	return out
}

// Normalize fills nil collections so that a loaded profile behaves like a fresh one.
func (p Profile) Normalize() Profile {
	if p.KeyFacts == nil {
		p.KeyFacts = []KeyFact{}
	}
	if p.Relationships == nil {
		p.Relationships = map[string]Relationship{}
	}
	if p.GoalsAndPromises == nil {
		p.GoalsAndPromises = []Goal{}
	}
	if p.ImportantEvents == nil {
		p.ImportantEvents = []ImportantEvent{}
	}
	if p.Inventory == nil {
		p.Inventory = []string{}
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Secrets == nil {
		p.Secrets = []string{}
	}
	for name, rel := range p.Relationships {
		if rel.RecentInteractions == nil {
			rel.RecentInteractions = []string{}
			p.Relationships[name] = rel
		}
	}
	return p
}

// IsEmpty 报告档案是否没有任何记录。
func (p Profile) IsEmpty() bool {
	return p.PlayerInfo == (PlayerInfo{}) &&
		len(p.KeyFacts) == 0 &&
		len(p.Relationships) == 0 &&
		len(p.GoalsAndPromises) == 0 &&
		len(p.ImportantEvents) == 0 &&
		len(p.Inventory) == 0 &&
		len(p.Skills) == 0 &&
		len(p.Secrets) == 0
}
