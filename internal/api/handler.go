// Package api is the JSON management surface of the daemon: quick
// messages, widget programs, custom schedules, birthdays, settings, and
// the dispatch audit log. It is consumed by the web frontend and by
// curl-wielding operators; responses always carry the
// {success, message, data} envelope.
package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"signboard/internal/dispatch"
	"signboard/internal/storage"
	"signboard/pkg/logx"
)

type Handler struct {
	validate  *validator.Validate
	log       logx.Logger
	d         *dispatch.Dispatcher
	schedules *dispatch.Schedules
	store     storage.Store

	Mux *chi.Mux
}

func NewHandler(d *dispatch.Dispatcher, schedules *dispatch.Schedules, store storage.Store, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
		d:         d,
		schedules: schedules,
		store:     store,
		Mux:       chi.NewRouter(),
	}
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.recoverer)
	h.Mux.Use(h.cors)
	h.Mux.Use(h.requestLogger)

	h.Mux.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/logs", h.Logs)

		r.Post("/message", h.SendMessage)
		r.Post("/program", h.SendProgram)

		r.Post("/schedule", h.CreateSchedule)
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Patch("/{id}", h.UpdateSchedule)
			r.Delete("/{id}", h.DeleteSchedule)
		})

		r.Route("/birthdays", func(r chi.Router) {
			r.Get("/", h.ListBirthdays)
			r.Post("/", h.AddBirthday)
		})

		r.Route("/board", func(r chi.Router) {
			r.Get("/status", h.BoardStatus)
			r.Get("/settings", h.GetBoardSettings)
			r.Put("/settings", h.UpdateBoardSettings)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Get("/settings", h.GetAISettings)
			r.Put("/settings", h.UpdateAISettings)
		})
	})
}

// cors mirrors the permissive headers the frontend expects. The API
// binds to localhost by default, so wide-open CORS is acceptable here.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Duration("took", time.Since(start)))
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error("panic in handler",
					logx.String("path", r.URL.Path),
					logx.Any("panic", rec),
					logx.String("stack", string(debug.Stack())))
				h.fail(w, r, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
