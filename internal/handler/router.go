package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	eventshandler "github.com/zhouzirui/z-tavern-rpg/backend/internal/handler/events"
	memoryhandler "github.com/zhouzirui/z-tavern-rpg/backend/internal/handler/memory"
	moduleshandler "github.com/zhouzirui/z-tavern-rpg/backend/internal/handler/modules"
	sessionhandler "github.com/zhouzirui/z-tavern-rpg/backend/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/z-tavern-rpg/backend/internal/middleware"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	eventservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/events"
	memoryservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/memory"
	sessionservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/session"
	"github.com/zhouzirui/z-tavern-rpg/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(presets module.Store, sessionSvc *sessionservice.Service, memorySvc *memoryservice.Service, hub *eventservice.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		moduleshandler.New(presets).RegisterRoutes(api)
		sessionhandler.New(sessionSvc).RegisterRoutes(api)
		memoryhandler.New(memorySvc).RegisterRoutes(api)
		eventshandler.New(hub).RegisterRoutes(api)
	})

	return r
}
