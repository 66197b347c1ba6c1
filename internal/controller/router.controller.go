package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sharetube/client/internal/metrics"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/state", c.getState)
	r.Route("/session", func(r chi.Router) {
		r.Get("/", c.getSession)
		r.Post("/", c.createRoom)
		r.Post("/join", c.joinRoom)
		r.Delete("/", c.leaveRoom)
	})
	r.Route("/chat", func(r chi.Router) {
		r.Get("/draft", c.getDraft)
		r.Put("/draft", c.setDraft)
		r.Post("/send", c.sendChat)
	})
	r.Route("/player", func(r chi.Router) {
		r.Put("/", c.setPlayState)
		r.Post("/toggle", c.togglePlayState)
		r.Post("/next", c.skipNext)
		r.Post("/previous", c.skipPrevious)
		r.Post("/seek", c.seek)
		r.Get("/volume", c.getVolume)
		r.Put("/volume", c.setVolume)
	})
	r.Post("/queue", c.addToQueue)
	r.Get("/members", c.getMembers)

	return r
}
