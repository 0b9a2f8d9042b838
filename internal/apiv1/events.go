package apiv1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// EventsHandler streams the renderer callbacks as websocket messages
type EventsHandler struct {
	hub http.Handler
}

func NewEventsHandler(hub http.Handler) *EventsHandler {
	return &EventsHandler{hub: hub}
}

func (h *EventsHandler) Routes() (string, *chi.Mux) {
	router := chi.NewRouter()
	router.Get("/", h.hub.ServeHTTP)
	return "/events", router
}
