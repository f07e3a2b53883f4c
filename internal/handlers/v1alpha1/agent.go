package v1alpha1

import (
	"net/http"
	"strconv"

	"github.com/go-chi/render"
)

// (GET /health)
func (s *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := s.healthSrv.Health(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, health)
}

// (POST /api/v1/agent/process-now)
func (s *ServiceHandler) ProcessNow(w http.ResponseWriter, r *http.Request) {
	result := s.agentSrv.ProcessNow()
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, result)
}

// (GET /api/v1/agent/activity)
func (s *ServiceHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	activity, err := s.agentSrv.Activity(r.Context(), limit)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, activity)
}
