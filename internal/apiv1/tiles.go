package apiv1

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/renderer"
	"github.com/willie68/go_tilefeed/internal/tilecache"
)

type tileService interface {
	RequestTile(id mercantile.TileID)
	TileData(id mercantile.TileID) ([]byte, error)
}

type cacheInfo interface {
	IDs() []mercantile.TileID
	Size() int
}

type CacheResponse struct {
	Size  int                 `json:"size"`
	Count int                 `json:"count"`
	Tiles []renderer.TileData `json:"tiles"`
}

type TilesHandler struct {
	tiles tileService
	cache cacheInfo
}

func NewTilesHandler(tiles tileService, cache cacheInfo) *TilesHandler {
	return &TilesHandler{
		tiles: tiles,
		cache: cache,
	}
}

func (h *TilesHandler) Routes() (string, *chi.Mux) {
	router := chi.NewRouter()
	router.Get("/", h.GetCache)
	router.Get("/{z}/{x}/{y}", h.GetTile)
	router.Post("/{z}/{x}/{y}/request", h.PostRequest)
	return "/tiles", router
}

// GetCache lists the cached tiles, least recently used first
func (h *TilesHandler) GetCache(w http.ResponseWriter, r *http.Request) {
	ids := h.cache.IDs()
	res := CacheResponse{
		Size:  h.cache.Size(),
		Count: len(ids),
		Tiles: make([]renderer.TileData, 0, len(ids)),
	}
	for _, id := range ids {
		res.Tiles = append(res.Tiles, renderer.TileData{Z: id.Z, X: id.X, Y: id.Y})
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}

// GetTile serves the cached data of a tile, tiles are never fetched here
func (h *TilesHandler) GetTile(w http.ResponseWriter, r *http.Request) {
	id, err := h.getRequestParameter(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Path error: %s", err.Error()), http.StatusBadRequest)
		return
	}
	data, err := h.tiles.TileData(id)
	if err != nil {
		if errors.Is(err, tilecache.ErrNotFound) || errors.Is(err, tilecache.ErrInconsistent) {
			http.Error(w, fmt.Sprintf("tile %s not cached", id), http.StatusNotFound)
			return
		}
		logger.Error("error reading tile", "tile", id.String(), "error", err)
		http.Error(w, fmt.Sprintf("System error: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		logger.Warn("error writing tile", "tile", id.String(), "error", err)
	}
}

// PostRequest asks for the tile, it is announced on the event stream when available
func (h *TilesHandler) PostRequest(w http.ResponseWriter, r *http.Request) {
	id, err := h.getRequestParameter(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Path error: %s", err.Error()), http.StatusBadRequest)
		return
	}
	h.tiles.RequestTile(id)
	w.WriteHeader(http.StatusAccepted)
}

func (h *TilesHandler) getRequestParameter(r *http.Request) (id mercantile.TileID, err error) {
	id.Z, err = strconv.Atoi(chi.URLParam(r, "z"))
	if err != nil {
		return id, errors.New("error in zoom level")
	}
	id.X, err = strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		return id, errors.New("error in x axis")
	}
	ys := chi.URLParam(r, "y")
	ys = strings.TrimSuffix(ys, filepath.Ext(ys))
	id.Y, err = strconv.Atoi(ys)
	if err != nil {
		return id, errors.New("error in y axis")
	}
	if !id.Valid() {
		return id, errors.New("invalid tile coordinates")
	}
	return id, nil
}
