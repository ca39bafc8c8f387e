package session

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/analysis/reply"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/llm"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/ai"
)

var (
	// ErrBusy 表示已有阶段操作在等待模型返回。
	ErrBusy = errors.New("another session action is in flight")
	// ErrWrongStage 表示当前阶段不允许该操作。
	ErrWrongStage = errors.New("action not allowed in current stage")
)

// ValidationError rejects a transition because of missing or invalid input.
// The session state is unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func wrongStage(action string, current Stage) error {
	return fmt.Errorf("%s in stage %s: %w", action, current, ErrWrongStage)
}

// KindOf classifies err for display and HTTP status mapping.
func KindOf(err error) event.ErrorKind {
	var (
		validationErr *ValidationError
		apiErr        *llm.APIError
		transportErr  *llm.TransportError
		parseErr      *reply.ParseFailure
		mergeErr      *memorymodel.MergeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return event.ErrValidation
	case errors.Is(err, ErrBusy):
		return event.ErrBusy
	case errors.Is(err, ErrWrongStage), errors.Is(err, ai.ErrModuleDisabled):
		return event.ErrStage
	case errors.As(err, &apiErr):
		return event.ErrAPI
	case errors.As(err, &transportErr):
		return event.ErrTransport
	case errors.As(err, &parseErr):
		return event.ErrParse
	case errors.As(err, &mergeErr):
		return event.ErrMerge
	default:
		return event.ErrInternal
	}
}

// detailOf builds the display payload for err.
func detailOf(err error) *event.ErrorDetail {
	detail := &event.ErrorDetail{Kind: KindOf(err), Detail: err.Error()}
	var gwErr *ai.GatewayError
	if errors.As(err, &gwErr) {
		detail.Module = string(gwErr.Module)
	}
	return detail
}
