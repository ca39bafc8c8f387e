package event

import (
	"time"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/scene"
)

// Kind distinguishes the display payloads emitted by the session.
type Kind string

const (
	KindUtterances Kind = "utterances"
	KindScene      Kind = "scene"
	KindLetter     Kind = "letter"
	KindError      Kind = "error"
	KindStage      Kind = "stage"
)

// ErrorKind classifies a failure for the display layer.
type ErrorKind string

const (
	ErrValidation ErrorKind = "validation"
	ErrTransport  ErrorKind = "transport"
	ErrAPI        ErrorKind = "api"
	ErrParse      ErrorKind = "parse"
	ErrMerge      ErrorKind = "merge"
	ErrBusy       ErrorKind = "busy"
	ErrStage      ErrorKind = "stage"
	ErrInternal   ErrorKind = "internal"
)

// ErrorDetail is the payload of a KindError event.
type ErrorDetail struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
	// Module names the model module whose call failed, if any.
	Module string `json:"module,omitempty"`
}

// Event is one display update. Exactly one payload field matches Kind.
type Event struct {
	ID               string            `json:"id"`
	Kind             Kind              `json:"kind"`
	Stage            string            `json:"stage,omitempty"`
	Utterances       []scene.Utterance `json:"utterances,omitempty"`
	SceneDescription string            `json:"sceneDescription,omitempty"`
	NpcIntro         *scene.NpcIntro   `json:"npcIntro,omitempty"`
	Letter           *scene.Letter     `json:"letter,omitempty"`
	Error            *ErrorDetail      `json:"error,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}
