package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/salesync-system/internal/middleware"
)

// quoteIDFromRequest извлекает идентификатор котировки из пути запроса.
func quoteIDFromRequest(r *http.Request) string {
	return chi.URLParam(r, "quoteID")
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса синхронизации.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Post("/quotes/{quoteID}/sync", h.SyncQuote)
		r.Get("/sync/runs", h.GetRuns)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
