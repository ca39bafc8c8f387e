package reply

import (
	"errors"
	"strings"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
)

const (
	sceneMarker = "【场景描述】"
	introMarker = "【NPC初始对话】"
)

var actionPrefixes = []string{"动作：", "动作:", "【动作】", "action:"}

var errNoSceneMarker = errors.New("missing scene description marker")

type sceneIntroPayload struct {
	SceneDescription string           `json:"scene_description"`
	NpcDialogue      *npcIntroPayload `json:"npc_dialogue"`
}

type npcIntroPayload struct {
	NpcName string `json:"npc_name"`
	Content string `json:"content"`
	Action  string `json:"action"`
	Emotion string `json:"emotion"`
}

// DecodeSceneIntro parses the story module reply. previousSummary stands in
// for a missing scene description.
func DecodeSceneIntro(raw string, mode Mode, previousSummary string) (SceneIntro, error) {
	if mode == ModeText {
		return decodeSceneText(raw, previousSummary)
	}

	payload, err := decodeJSON[sceneIntroPayload](raw)
	if err != nil {
		return SceneIntro{}, &ParseFailure{Shape: ShapeSceneAndIntro, Raw: raw, Err: err}
	}

	out := SceneIntro{SceneDescription: strings.TrimSpace(payload.SceneDescription)}
	if out.SceneDescription == "" {
		out.SceneDescription = previousSummary
	}
	if payload.NpcDialogue != nil && strings.TrimSpace(payload.NpcDialogue.Content) != "" {
		intro := payload.NpcDialogue.toIntro()
		out.NpcIntro = &intro
	}
	return out, nil
}

func decodeSceneText(raw, previousSummary string) (SceneIntro, error) {
	start := strings.Index(raw, sceneMarker)
	if start == -1 {
		return SceneIntro{}, &ParseFailure{Shape: ShapeSceneAndIntro, Raw: raw, Err: errNoSceneMarker}
	}
	body := raw[start+len(sceneMarker):]

	description := body
	introRaw := ""
	if end := strings.Index(body, introMarker); end != -1 {
		description = body[:end]
		introRaw = strings.TrimSpace(body[end+len(introMarker):])
	}

	out := SceneIntro{SceneDescription: strings.TrimSpace(description)}
	if out.SceneDescription == "" {
		out.SceneDescription = previousSummary
	}
	if introRaw != "" {
		intro := parseIntroText(introRaw)
		out.NpcIntro = &intro
	}
	return out, nil
}

// parseIntroText accepts "[名字] 台词 [情绪：x]", "名字：台词" and an optional
// "动作：..." line. Anything else is attributed to the fallback speaker.
func parseIntroText(text string) scene.NpcIntro {
	var (
		intro   scene.NpcIntro
		content []string
	)
	for _, line := range splitLines(text) {
		if action, ok := cutAction(line); ok {
			intro.Action = action
			continue
		}
		if intro.NpcName == "" {
			if match := utteranceLine.FindStringSubmatch(line); match != nil {
				intro.NpcName = strings.TrimSpace(match[1])
				content = append(content, strings.TrimSpace(match[2]))
				if label, ok := emotion.Normalize(match[3]); ok {
					intro.Emotion = label
				}
				continue
			}
			if name, said, ok := cutSpeaker(line); ok {
				intro.NpcName = name
				content = append(content, said)
				continue
			}
		}
		content = append(content, line)
	}

	if intro.NpcName == "" {
		intro.NpcName = FallbackNpcName
	}
	intro.Content = strings.Join(content, "\n")
	return intro
}

func cutAction(line string) (string, bool) {
	lower := strings.ToLower(line)
	for _, prefix := range actionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// cutSpeaker splits "名字：台词". Long prefixes are treated as prose.
func cutSpeaker(line string) (string, string, bool) {
	for _, sep := range []string{"：", ":"} {
		name, said, found := strings.Cut(line, sep)
		if !found {
			continue
		}
		name = strings.Trim(strings.TrimSpace(name), "[]【】")
		said = strings.TrimSpace(said)
		if name == "" || said == "" || len([]rune(name)) > 16 {
			return "", "", false
		}
		return name, said, true
	}
	return "", "", false
}

func (p npcIntroPayload) toIntro() scene.NpcIntro {
	name := strings.TrimSpace(p.NpcName)
	if name == "" {
		name = FallbackNpcName
	}
	intro := scene.NpcIntro{
		NpcName: name,
		Content: strings.TrimSpace(p.Content),
		Action:  strings.TrimSpace(p.Action),
	}
	if label, ok := emotion.Normalize(p.Emotion); ok {
		intro.Emotion = label
	}
	return intro
}
