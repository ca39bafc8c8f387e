package reply

import (
	"errors"
	"strings"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
)

const (
	senderMarker = "【来信者】"
	bodyMarker   = "【信件内容】"
)

var errEmptyLetter = errors.New("letter has no content")

type letterPayload struct {
	NpcName string `json:"npc_name"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Letter  string `json:"letter"`
}

// DecodeLetter parses the letter module reply. In text mode a reply without
// both markers becomes a letter from an unknown sender.
func DecodeLetter(raw string, mode Mode) (scene.Letter, error) {
	if mode == ModeText {
		return decodeLetterText(raw), nil
	}

	payload, err := decodeJSON[letterPayload](raw)
	if err != nil {
		return scene.Letter{}, &ParseFailure{Shape: ShapeLetter, Raw: raw, Err: err}
	}
	letter := scene.Letter{
		NpcName: firstNonBlank(payload.NpcName, payload.Sender),
		Content: firstNonBlank(payload.Content, payload.Letter),
	}
	if letter.Content == "" {
		return scene.Letter{}, &ParseFailure{Shape: ShapeLetter, Raw: raw, Err: errEmptyLetter}
	}
	return letter, nil
}

func decodeLetterText(raw string) scene.Letter {
	senderAt := strings.Index(raw, senderMarker)
	bodyAt := strings.Index(raw, bodyMarker)
	if senderAt == -1 || bodyAt == -1 {
		return scene.Letter{Content: strings.TrimSpace(raw)}
	}

	sender := raw[senderAt+len(senderMarker):]
	if newline := strings.IndexAny(sender, "\r\n"); newline != -1 {
		sender = sender[:newline]
	}
	if cut := strings.Index(sender, bodyMarker); cut != -1 {
		sender = sender[:cut]
	}

	return scene.Letter{
		NpcName: strings.TrimSpace(sender),
		Content: strings.TrimSpace(raw[bodyAt+len(bodyMarker):]),
	}
}

// DecodeMemoryDelta parses a memory delta. Both modes expect JSON since the
// memory module has no text grammar.
func DecodeMemoryDelta(raw string, _ Mode) (memory.Delta, error) {
	delta, err := decodeJSON[memory.Delta](raw)
	if err != nil {
		return memory.Delta{}, &ParseFailure{Shape: ShapeMemoryDelta, Raw: raw, Err: err}
	}
	return delta, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
