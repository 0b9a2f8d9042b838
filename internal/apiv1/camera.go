package apiv1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/willie68/go_tilefeed/internal/controller"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/renderer"
)

type cameraService interface {
	SetCameraPosition(lat, lon, alt float64)
	Camera() controller.CameraState
	CurrentTile() (mercantile.TileID, bool)
	State() controller.State
}

// CameraRequest a new camera position, lat and lon are required
type CameraRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Alt float64  `json:"alt"`
}

type CameraResponse struct {
	controller.CameraState
	State string             `json:"state"`
	Tile  *renderer.TileData `json:"tile,omitempty"`
}

type CameraHandler struct {
	ctrl     cameraService
	validate *validator.Validate
}

func NewCameraHandler(ctrl cameraService) *CameraHandler {
	return &CameraHandler{
		ctrl:     ctrl,
		validate: validator.New(),
	}
}

func (h *CameraHandler) Routes() (string, *chi.Mux) {
	router := chi.NewRouter()
	router.Get("/", h.GetCamera)
	router.Post("/", h.PostCamera)
	return "/camera", router
}

func (h *CameraHandler) GetCamera(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.response())
}

// PostCamera moves the camera, the response carries the resulting tile
func (h *CameraHandler) PostCamera(w http.ResponseWriter, r *http.Request) {
	var req CameraRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, fmt.Sprintf("body error: %s", err.Error()), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("validation error: %s", err.Error()), http.StatusBadRequest)
		return
	}
	if _, err := mercantile.Tile(*req.Lat, *req.Lon, 0); err != nil {
		http.Error(w, fmt.Sprintf("position error: %s", err.Error()), http.StatusBadRequest)
		return
	}
	h.ctrl.SetCameraPosition(*req.Lat, *req.Lon, req.Alt)
	logger.Debug("camera moved", "lat", *req.Lat, "lon", *req.Lon, "alt", req.Alt)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.response())
}

func (h *CameraHandler) response() CameraResponse {
	res := CameraResponse{
		CameraState: h.ctrl.Camera(),
		State:       h.ctrl.State().String(),
	}
	if id, ok := h.ctrl.CurrentTile(); ok {
		res.Tile = &renderer.TileData{Z: id.Z, X: id.X, Y: id.Y}
	}
	return res
}
