package measurement

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Routes GET / lists all points, POST /reset and /reset/{name} clear them
func Routes(ms *Service) *chi.Mux {
	router := chi.NewRouter()
	router.Get("/", GetDataHandler(ms))
	router.Post("/reset", ResetHandler(ms))
	router.Post("/reset/{name}", ResetPointHandler(ms))
	return router
}

func GetDataHandler(ms *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, ms.Datas())
	}
}

func ResetHandler(ms *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ms.Reset()
		render.NoContent(w, r)
	}
}

func ResetPointHandler(ms *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ms.Point(chi.URLParam(r, "name")).Reset()
		render.NoContent(w, r)
	}
}
