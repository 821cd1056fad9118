package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"labportal/internal/api"
	"labportal/internal/engine"
	"labportal/internal/notify"
	"labportal/internal/store"
	"labportal/pkg/config"
)

type Dependencies struct {
	Cfg    config.Config
	Engine *engine.Engine
	Store  store.Reader
	Hub    *notify.Hub
	Logger *zap.Logger
}

func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(api.CORSMiddleware(api.CORSOptions{
		AllowedOrigins: deps.Cfg.CORSAllowedOrigins,
		MaxAgeSeconds:  600,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	requestHandlers := RequestHandlers{Engine: deps.Engine, Store: deps.Store, Logger: logger}
	departmentHandlers := DepartmentHandlers{Engine: deps.Engine, Store: deps.Store, Logger: logger}
	labHandlers := LabHandlers{Engine: deps.Engine, Store: deps.Store, Logger: logger}

	// v1
	r.Route("/v1", func(r chi.Router) {
		// Production: bearer JWT. Dev: falls back to X-User-ID.
		r.Use(api.ActorAuth(deps.Cfg))

		// Requests
		r.Post("/requests/bookings", requestHandlers.SubmitBooking)
		r.Post("/requests/components", requestHandlers.SubmitComponent)
		r.Get("/requests/{id}", requestHandlers.Get)
		r.Get("/requests/{id}/events", requestHandlers.Events)
		r.Get("/requests/{id}/slip", requestHandlers.Slip)
		r.Post("/requests/{id}/approve", requestHandlers.Approve)
		r.Post("/requests/{id}/reject", requestHandlers.Reject)
		r.Post("/requests/{id}/withdraw", requestHandlers.Withdraw)
		r.Post("/requests/{id}/issue", requestHandlers.Issue)
		r.Post("/requests/{id}/return-request", requestHandlers.ReturnRequest)
		r.Post("/requests/{id}/complete-return", requestHandlers.CompleteReturn)
		r.Post("/requests/{id}/extension", requestHandlers.RequestExtension)
		r.Post("/requests/{id}/extension/resolve", requestHandlers.ResolveExtension)

		// Departments
		r.Get("/departments/{id}", departmentHandlers.Get)
		r.Put("/departments/{id}/authority", departmentHandlers.SetAuthority)

		// Labs
		r.Get("/labs/{id}/bookings", labHandlers.Bookings)
		r.Get("/labs/{id}/timetable", labHandlers.Timetable)
		r.Post("/labs/{id}/timetable", labHandlers.CreateEntry)
		r.Put("/labs/{id}/timetable/{entryId}", labHandlers.UpdateEntry)
		r.Delete("/labs/{id}/timetable/{entryId}", labHandlers.DeleteEntry)

		// Live notifications
		if deps.Hub != nil {
			r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
				actor, ok := requireActor(w, r)
				if !ok {
					return
				}
				if err := deps.Hub.Serve(w, r, actor.UserID); err != nil {
					logger.Debug("websocket upgrade failed", zap.Error(err))
				}
			})
		}
	})

	return r
}
