package scene

import (
	"time"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/emotion"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerPlayer Speaker = "player"
	SpeakerNPC    Speaker = "npc"
)

// Format records how an NPC turn's raw content must be reparsed.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Turn persists one entry of the scene conversation. NPC turns keep the raw
// model output so the utterances can be reparsed on demand.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Format    Format    `json:"format,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Utterance is one line spoken by an NPC, produced only by the reply parser.
type Utterance struct {
	NpcName string        `json:"npcName"`
	Content string        `json:"content"`
	Emotion emotion.Label `json:"emotion,omitempty"`
}

// NpcIntro is the opening line the story module proposes for the next scene.
type NpcIntro struct {
	NpcName string        `json:"npcName"`
	Content string        `json:"content"`
	Action  string        `json:"action,omitempty"`
	Emotion emotion.Label `json:"emotion,omitempty"`
}

// Utterance converts the intro into a displayable NPC utterance.
func (i NpcIntro) Utterance() Utterance {
	return Utterance{NpcName: i.NpcName, Content: i.Content, Emotion: i.Emotion}
}

// Letter is the narrative letter artifact produced at the end of a scene.
// An empty NpcName means the sender is unknown.
type Letter struct {
	NpcName string `json:"npcName,omitempty"`
	Content string `json:"content"`
}
