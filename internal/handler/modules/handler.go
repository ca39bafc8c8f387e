package modules

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	"github.com/zhouzirui/z-tavern-rpg/backend/pkg/utils"
)

// Handler 模块预设的HTTP处理器
type Handler struct {
	presets module.Store
}

// New 创建模块预设处理器
func New(presets module.Store) *Handler {
	return &Handler{
		presets: presets,
	}
}

// RegisterRoutes 注册模块相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/modules", h.handleListPresets)
	r.Get("/modules/{presetID}", h.handleGetPreset)
}

// handleListPresets 列出所有预设
func (h *Handler) handleListPresets(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.presets.List())
}

func (h *Handler) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, ok := h.presets.FindByID(chi.URLParam(r, "presetID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "preset not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, preset)
}
