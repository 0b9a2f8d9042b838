package apiv1

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/willie68/go_tilefeed/internal/provider"
)

type providerList interface {
	Names() []string
	IsPrefetchable(name string) bool
}

type ProviderInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Active       bool   `json:"active"`
	Prefetchable bool   `json:"prefetchable"`
}

type ProvidersHandler struct {
	providers providerList
	configs   provider.ConfigMap
	tiles     string
	pois      []string
}

func NewProvidersHandler(providers providerList, configs provider.ConfigMap, tiles string, pois []string) *ProvidersHandler {
	return &ProvidersHandler{
		providers: providers,
		configs:   configs,
		tiles:     tiles,
		pois:      pois,
	}
}

func (h *ProvidersHandler) Routes() (string, *chi.Mux) {
	router := chi.NewRouter()
	router.Get("/", h.GetProviders)
	return "/providers", router
}

func (h *ProvidersHandler) GetProviders(w http.ResponseWriter, r *http.Request) {
	names := h.providers.Names()
	res := make([]ProviderInfo, 0, len(names))
	for _, n := range names {
		res = append(res, ProviderInfo{
			Name:         n,
			Type:         h.configs[n].Type,
			Active:       n == h.tiles || slices.Contains(h.pois, n),
			Prefetchable: h.providers.IsPrefetchable(n),
		})
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}
