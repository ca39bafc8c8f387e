package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/ai"
	sessionservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/session"
	"github.com/zhouzirui/z-tavern-rpg/backend/pkg/utils"
)

// Handler 会话状态机的HTTP处理器
type Handler struct {
	svc *sessionservice.Service
}

// New 创建会话处理器
func New(svc *sessionservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleSnapshot)
	r.Post("/session/config", h.handleConfigure)
	r.Delete("/session/config", h.handleReturnToConfig)
	r.Post("/session/scene", h.handleBeginScene)
	r.Post("/session/turns", h.handleSubmitTurn)
	r.Post("/session/end", h.handleEndScene)
	r.Post("/session/next", h.handleNextScene)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

// handleConfigure Config → SceneInit
func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var payload sessionservice.ConfigInput
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Configure(detached(r), payload); err != nil {
		respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *Handler) handleReturnToConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ReturnToConfig(); err != nil {
		respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

// handleBeginScene SceneInit → Dialogue
func (h *Handler) handleBeginScene(w http.ResponseWriter, r *http.Request) {
	var payload sessionservice.SceneInput
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	utterances, err := h.svc.BeginScene(detached(r), payload)
	if err != nil {
		respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"utterances": utterances})
}

// handleSubmitTurn 处理一轮玩家发言
func (h *Handler) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.SubmitTurn(detached(r), payload.Content)
	if err != nil {
		respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleEndScene Dialogue → Summary
func (h *Handler) handleEndScene(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.EndScene(detached(r))
	if err != nil {
		respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleNextScene Summary → SceneInit
func (h *Handler) handleNextScene(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.NextScene()
	if err != nil {
		respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"storySummary": summary})
}

// detached keeps request values but not cancellation: a model call, once
// issued, runs to completion even if the client goes away.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind event.ErrorKind) int {
	switch kind {
	case event.ErrValidation:
		return http.StatusBadRequest
	case event.ErrBusy, event.ErrStage:
		return http.StatusConflict
	case event.ErrTransport, event.ErrAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondFailure(w http.ResponseWriter, err error) {
	kind := sessionservice.KindOf(err)
	body := utils.ErrorBody{Error: err.Error(), Kind: string(kind)}

	var validation *sessionservice.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}
	var gwErr *ai.GatewayError
	if errors.As(err, &gwErr) {
		body.Module = string(gwErr.Module)
	}
	utils.RespondErrorBody(w, StatusFor(kind), body)
}
