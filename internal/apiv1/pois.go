package apiv1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type selectionService interface {
	SelectPoi(id string)
	DeselectPoi(id string)
}

type PoisHandler struct {
	sel selectionService
}

func NewPoisHandler(sel selectionService) *PoisHandler {
	return &PoisHandler{sel: sel}
}

func (h *PoisHandler) Routes() (string, *chi.Mux) {
	router := chi.NewRouter()
	router.Post("/{id}/select", h.PostSelect)
	router.Post("/{id}/deselect", h.PostDeselect)
	return "/pois", router
}

func (h *PoisHandler) PostSelect(w http.ResponseWriter, r *http.Request) {
	h.sel.SelectPoi(chi.URLParam(r, "id"))
	render.NoContent(w, r)
}

func (h *PoisHandler) PostDeselect(w http.ResponseWriter, r *http.Request) {
	h.sel.DeselectPoi(chi.URLParam(r, "id"))
	render.NoContent(w, r)
}
