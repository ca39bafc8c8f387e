package reply

import (
	"errors"
	"regexp"
	"strings"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
)

// utteranceLine matches a whole line "[名字] 台词 [情绪：高兴]"; the colon may be
// full- or half-width.
var utteranceLine = regexp.MustCompile(`^\s*\[(.+?)\]\s*(.+?)\s*\[情绪[:：]\s*(.+?)\]\s*$`)

var errNoUtterances = errors.New("reply carries neither responses nor content")

type utterancePayload struct {
	NpcName string `json:"npc_name"`
	Content string `json:"content"`
	Emotion string `json:"emotion"`
}

type dialoguePayload struct {
	Responses []utterancePayload `json:"responses"`
	utterancePayload
}

// Fallback is the single unattributed utterance used when a reply cannot be parsed.
func Fallback(raw string) scene.Utterance {
	return scene.Utterance{
		NpcName: FallbackNpcName,
		Content: strings.TrimSpace(raw),
		Emotion: emotion.Default,
	}
}

// DecodeDialogue parses a batch of NPC utterances. Text mode never fails:
// every non-blank line yields exactly one utterance.
func DecodeDialogue(raw string, mode Mode) ([]scene.Utterance, error) {
	if mode == ModeText {
		return parseDialogueLines(raw), nil
	}

	payload, err := decodeJSON[dialoguePayload](raw)
	if err != nil {
		return nil, &ParseFailure{Shape: ShapeDialogueBatch, Raw: raw, Err: err}
	}

	if payload.Responses == nil {
		// tolerate a single bare utterance object
		if strings.TrimSpace(payload.Content) == "" {
			return nil, &ParseFailure{Shape: ShapeDialogueBatch, Raw: raw, Err: errNoUtterances}
		}
		return []scene.Utterance{payload.utterancePayload.toUtterance()}, nil
	}

	utterances := make([]scene.Utterance, 0, len(payload.Responses))
	for _, item := range payload.Responses {
		utterances = append(utterances, item.toUtterance())
	}
	return utterances, nil
}

// DecodeGreeting parses a single NPC greeting. A batch reply is accepted and
// its first utterance used.
func DecodeGreeting(raw string, mode Mode) (scene.Utterance, error) {
	if mode == ModeText {
		if strings.TrimSpace(raw) == "" {
			return scene.Utterance{}, &ParseFailure{Shape: ShapeSingleGreeting, Raw: raw, Err: errNoUtterances}
		}
		for _, line := range splitLines(raw) {
			if utteranceLine.MatchString(line) {
				return parseDialogueLine(line), nil
			}
		}
		// an unmarked greeting stays one utterance even across several lines
		return Fallback(raw), nil
	}

	utterances, err := DecodeDialogue(raw, ModeJSON)
	if err != nil {
		return scene.Utterance{}, &ParseFailure{Shape: ShapeSingleGreeting, Raw: raw, Err: errors.Unwrap(err)}
	}
	if len(utterances) == 0 {
		return scene.Utterance{}, &ParseFailure{Shape: ShapeSingleGreeting, Raw: raw, Err: errNoUtterances}
	}
	return utterances[0], nil
}

// FormatUtterance renders an utterance in the text grammar so that
// DecodeDialogue(FormatUtterance(u), ModeText) yields u again.
func FormatUtterance(u scene.Utterance) string {
	name := strings.TrimSpace(u.NpcName)
	if name == "" {
		name = FallbackNpcName
	}
	label := u.Emotion
	if !emotion.Valid(label) {
		label = emotion.Default
	}
	content := strings.Join(strings.Fields(u.Content), " ")
	return "[" + name + "] " + content + " [情绪：" + string(label) + "]"
}

func parseDialogueLines(raw string) []scene.Utterance {
	lines := splitLines(raw)
	utterances := make([]scene.Utterance, 0, len(lines))
	for _, line := range lines {
		utterances = append(utterances, parseDialogueLine(line))
	}
	return utterances
}

func parseDialogueLine(line string) scene.Utterance {
	match := utteranceLine.FindStringSubmatch(line)
	if match == nil {
		return Fallback(line)
	}
	utterance := scene.Utterance{
		NpcName: strings.TrimSpace(match[1]),
		Content: strings.TrimSpace(match[2]),
	}
	if label, ok := emotion.Normalize(match[3]); ok {
		utterance.Emotion = label
	}
	return utterance
}

func (p utterancePayload) toUtterance() scene.Utterance {
	name := strings.TrimSpace(p.NpcName)
	if name == "" {
		name = FallbackNpcName
	}
	utterance := scene.Utterance{
		NpcName: name,
		Content: strings.TrimSpace(p.Content),
	}
	if label, ok := emotion.Normalize(p.Emotion); ok {
		utterance.Emotion = label
	}
	return utterance
}

// splitLines returns the trimmed non-blank lines of text.
func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(normalized, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
