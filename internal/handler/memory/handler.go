package memory

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/pkg/utils"
)

// Service is what the handler needs from the memory service.
type Service interface {
	Snapshot() memorymodel.Profile
	Reset(ctx context.Context) error
}

// Handler 玩家记忆档案的HTTP处理器
type Handler struct {
	svc Service
}

// New 创建记忆处理器
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册记忆相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/memory", h.handleGet)
	r.Delete("/memory", h.handleReset)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

// handleReset 清空档案与存储
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to reset memory: "+err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}
