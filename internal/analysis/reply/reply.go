// Package reply normalizes raw model replies into typed records.
//
// Every function here is pure: the same raw text always yields the same
// result and nothing touches the network or the store. JSON mode is the
// preferred format; the text grammar is kept as a narrow fallback:
//
//	[名字] 台词 [情绪：高兴]
//	【场景描述】...【NPC初始对话】...
//	【来信者】名字 ... 【信件内容】...
package reply

import (
	"fmt"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
)

// Mode selects the reply grammar.
type Mode string

const (
	ModeJSON Mode = "json"
	ModeText Mode = "text"
)

// ModeFor maps a module's json flag to a parse mode.
func ModeFor(jsonMode bool) Mode {
	if jsonMode {
		return ModeJSON
	}
	return ModeText
}

// Format returns the turn format used to reparse a stored reply.
func (m Mode) Format() scene.Format {
	if m == ModeJSON {
		return scene.FormatJSON
	}
	return scene.FormatText
}

// ModeOf is the inverse of Format.
func ModeOf(format scene.Format) Mode {
	if format == scene.FormatJSON {
		return ModeJSON
	}
	return ModeText
}

// Shape names the expected reply structure.
type Shape string

const (
	ShapeDialogueBatch  Shape = "dialogue_batch"
	ShapeSingleGreeting Shape = "single_greeting"
	ShapeSceneAndIntro  Shape = "scene_and_intro"
	ShapeMemoryDelta    Shape = "memory_delta"
	ShapeLetter         Shape = "letter"
)

// FallbackNpcName is used for any utterance the parser cannot attribute.
const FallbackNpcName = "NPC"

// ParseFailure reports a reply that did not match the expected shape.
// Callers recover with the shape's documented fallback.
type ParseFailure struct {
	Shape Shape
	Raw   string
	Err   error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s reply: %v", e.Shape, e.Err)
	}
	return fmt.Sprintf("parse %s reply: unexpected structure", e.Shape)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// SceneIntro is the parsed story-module reply.
type SceneIntro struct {
	SceneDescription string          `json:"sceneDescription"`
	NpcIntro         *scene.NpcIntro `json:"npcIntro,omitempty"`
}

// Result is the tagged union returned by Parse; only the field matching
// Shape is populated.
type Result struct {
	Shape      Shape
	Utterances []scene.Utterance
	Greeting   scene.Utterance
	Scene      SceneIntro
	Delta      memory.Delta
	Letter     scene.Letter
}

// Options carries caller context some shapes need.
type Options struct {
	// PreviousSummary is the scene description fallback for ShapeSceneAndIntro.
	PreviousSummary string
}

// Parse decodes raw according to mode and shape. On failure it returns the
// shape's fallback result together with a *ParseFailure, so callers that
// only need a best-effort value may ignore the error.
func Parse(raw string, mode Mode, shape Shape, opts Options) (Result, error) {
	res := Result{Shape: shape}
	var err error
	switch shape {
	case ShapeDialogueBatch:
		res.Utterances, err = DecodeDialogue(raw, mode)
		if err == nil && len(res.Utterances) == 0 {
			err = &ParseFailure{Shape: shape, Raw: raw, Err: errNoUtterances}
		}
		if err != nil {
			res.Utterances = []scene.Utterance{Fallback(raw)}
		}
	case ShapeSingleGreeting:
		res.Greeting, err = DecodeGreeting(raw, mode)
		if err != nil {
			res.Greeting = Fallback(raw)
		}
	case ShapeSceneAndIntro:
		res.Scene, err = DecodeSceneIntro(raw, mode, opts.PreviousSummary)
		if err != nil {
			res.Scene = SceneIntro{SceneDescription: opts.PreviousSummary}
		}
	case ShapeMemoryDelta:
		res.Delta, err = DecodeMemoryDelta(raw, mode)
	case ShapeLetter:
		res.Letter, err = DecodeLetter(raw, mode)
		if err != nil {
			res.Letter = scene.Letter{Content: raw}
		}
	default:
		err = &ParseFailure{Shape: shape, Raw: raw, Err: fmt.Errorf("unknown shape %q", shape)}
	}
	return res, err
}
