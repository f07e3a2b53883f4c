package v1alpha1

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/biovault/document-agent/api/v1alpha1"
)

// (GET /api/v1/alerts)
func (s *ServiceHandler) GetUnresolvedAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.flagSrv.Unresolved(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, alerts)
}

// (GET /api/v1/alerts/all)
func (s *ServiceHandler) GetAllAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.flagSrv.All(r.Context(), limit)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, alerts)
}

// (POST /api/v1/alerts/{id}/resolve)
func (s *ServiceHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, api.Error{Error: "invalid flag id"})
		return
	}
	result, err := s.flagSrv.Resolve(r.Context(), uint(id))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}
