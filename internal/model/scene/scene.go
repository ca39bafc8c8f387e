package scene

import (
	"fmt"
	"time"
)

// Scene captures the context of one bounded unit of play.
type Scene struct {
	ID           string    `json:"id"`
	Index        int       `json:"index"`
	StorySummary string    `json:"storySummary"`
	NpcList      string    `json:"npcList"`
	NpcGoals     string    `json:"npcGoals"`
	StartedAt    time.Time `json:"startedAt"`
}

// Label names the scene for memory records, e.g. "第2幕".
func (s Scene) Label() string {
	if s.Index <= 0 {
		return "序幕"
	}
	return fmt.Sprintf("第%d幕", s.Index)
}
