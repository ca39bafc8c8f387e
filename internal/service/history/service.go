package history

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
)

var (
	ErrEmptyContent   = errors.New("turn content is required")
	ErrUnknownSpeaker = errors.New("unknown turn speaker")
)

// Transcript labels used by AsText.
const (
	PlayerLabel = "玩家"
	NpcLabel    = "NPC"
)

// Service is the append-only turn log of the current scene. RecentWindow is
// a pure truncation; AsText always covers every turn.
type Service struct {
	mu    sync.RWMutex
	turns []scene.Turn
	now   func() time.Time
}

// NewService bootstraps an empty in-memory history.
func NewService() *Service {
	return &Service{
		turns: make([]scene.Turn, 0, 32),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Append stores turns in order, assigning ids and timestamps. Either every
// turn is accepted or none is.
func (s *Service) Append(turns ...scene.Turn) error {
	for _, turn := range turns {
		if turn.Speaker != scene.SpeakerPlayer && turn.Speaker != scene.SpeakerNPC {
			return ErrUnknownSpeaker
		}
		if strings.TrimSpace(turn.Content) == "" {
			return ErrEmptyContent
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, turn := range turns {
		turn.ID = uuid.NewString()
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = s.now()
		}
		s.turns = append(s.turns, turn)
	}
	return nil
}

// RecentWindow returns the last maxTurns turns in chronological order.
func (s *Service) RecentWindow(maxTurns int) []scene.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxTurns <= 0 {
		return []scene.Turn{}
	}
	start := len(s.turns) - maxTurns
	if start < 0 {
		start = 0
	}
	copied := make([]scene.Turn, len(s.turns)-start)
	copy(copied, s.turns[start:])
	return copied
}

// Turns returns a copy of the full transcript.
func (s *Service) Turns() []scene.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]scene.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// AsText renders the full transcript as "玩家：..." / "NPC：..." blocks
// separated by blank lines.
func (s *Service) AsText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]string, 0, len(s.turns))
	for _, turn := range s.turns {
		blocks = append(blocks, Label(turn.Speaker)+"："+turn.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// Len reports the number of stored turns.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear drops every turn.
func (s *Service) Clear() {
	s.mu.Lock()
	s.turns = make([]scene.Turn, 0, 32)
	s.mu.Unlock()
}

// Label returns the transcript label of a speaker.
func Label(speaker scene.Speaker) string {
	if speaker == scene.SpeakerPlayer {
		return PlayerLabel
	}
	return NpcLabel
}
