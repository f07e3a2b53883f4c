package v1alpha1

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/biovault/document-agent/api/v1alpha1"
)

// multipartSlack covers the multipart boundary and header framing around
// the file payload itself.
const multipartSlack = 4 << 10

// (POST /api/v1/documents)
func (s *ServiceHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.documentSrv.MaxUploadBytes()+multipartSlack)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, api.Error{Error: "uploaded file exceeds the size limit"})
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, api.Error{Error: "missing multipart field 'file'"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, api.Error{Error: "failed to read uploaded file"})
		return
	}

	result, err := s.documentSrv.CreateDocument(r.Context(), header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// (POST /api/v1/documents/simulate)
func (s *ServiceHandler) SimulateDocuments(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	result, err := s.documentSrv.Simulate(r.Context(), count)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// (GET /api/v1/documents)
func (s *ServiceHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.documentSrv.Queue(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, queue)
}

// (GET /api/v1/documents/{id})
func (s *ServiceHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	document, err := s.documentSrv.Get(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, document)
}

// (GET /api/v1/documents/{id}/results)
func (s *ServiceHandler) GetDocumentResults(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	results, err := s.documentSrv.Results(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, results)
}

// (GET /api/v1/documents/{id}/image)
func (s *ServiceHandler) GetDocumentImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	path, filename, err := s.documentSrv.Image(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

// (POST /api/v1/documents/{id}/retry)
func (s *ServiceHandler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDocumentID(w, r)
	if !ok {
		return
	}
	if err := s.documentSrv.Retry(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "requeued", "document_id": id.String()})
}

func parseDocumentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, api.Error{Error: "invalid document id"})
		return uuid.Nil, false
	}
	return id, true
}
