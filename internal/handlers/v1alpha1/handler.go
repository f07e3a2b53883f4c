package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/biovault/document-agent/api/v1alpha1"
	"github.com/biovault/document-agent/internal/service"
)

type ServiceHandler struct {
	documentSrv *service.DocumentService
	flagSrv     *service.FlagService
	healthSrv   *service.HealthService
	agentSrv    *service.AgentService
}

func NewServiceHandler(
	documentService *service.DocumentService,
	flagService *service.FlagService,
	healthService *service.HealthService,
	agentService *service.AgentService,
) *ServiceHandler {
	return &ServiceHandler{
		documentSrv: documentService,
		flagSrv:     flagService,
		healthSrv:   healthService,
		agentSrv:    agentService,
	}
}

// renderError maps typed service errors to status codes; anything
// unclassified is a 500.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *service.ErrResourceNotFound:
		status = http.StatusNotFound
	case *service.ErrInvalidRequest:
		status = http.StatusBadRequest
	case *service.ErrNotRetryable:
		status = http.StatusConflict
	}
	render.Status(r, status)
	render.JSON(w, r, api.Error{Error: err.Error()})
}
