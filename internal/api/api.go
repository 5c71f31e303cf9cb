package api

import (
	"errors"
	"io"
	"net/http"

	"medscan-backend/internal/core"
	"medscan-backend/internal/session"
	"medscan-backend/internal/storage"
	"medscan-backend/pkg/api"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 10 << 20 // 10MB

type BackendService struct {
	predictor *core.PredictionService
	uploads   *storage.UploadStore
	sessions  session.Store
}

func NewBackendService(predictor *core.PredictionService, uploads *storage.UploadStore, sessions session.Store) *BackendService {
	return &BackendService{predictor: predictor, uploads: uploads, sessions: sessions}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(func(r *http.Request) (any, error) {
		return api.StatusResponse{Status: "API is running"}, nil
	}))
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) {
		return api.StatusResponse{Status: "healthy"}, nil
	}))
	r.Post("/predict", RestHandler(s.Predict))
	r.Get("/session/{user_id}", RestHandler(s.GetSession))
	r.Get("/image/{user_id}/{filename}", s.GetImage)
	r.Get("/image/{filename}", s.GetImageLegacy)
}

func (s *BackendService) Predict(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form")
	}

	userID := r.FormValue("user_id")
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	modelType := r.FormValue("model_type")
	if modelType == "" {
		// Older frontends submit the field under this name.
		modelType = r.FormValue("cancer_type")
	}
	if modelType == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing model_type")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "no image file provided, use 'file' as the form field name")
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read uploaded file")
	}

	result, err := s.predictor.Predict(r.Context(), userID, image, header.Filename, core.ModelType(modelType))
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidModelType):
			return nil, CodedErrorf(http.StatusBadRequest, "invalid model type %q", modelType)
		case errors.Is(err, storage.ErrInvalidUpload):
			return nil, CodedErrorf(http.StatusBadRequest, "empty upload")
		default:
			return nil, CodedError(http.StatusInternalServerError, err)
		}
	}

	return result, nil
}

func (s *BackendService) GetSession(r *http.Request) (any, error) {
	userID := chi.URLParam(r, "user_id")
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	query, err := ParseRequestQueryParams[api.SessionQuery](r)
	if err != nil {
		return nil, err
	}

	entries, err := s.sessions.Read(r.Context(), userID)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	if query.Offset > 0 {
		if query.Offset >= len(entries) {
			entries = []api.SessionEntry{}
		} else {
			entries = entries[query.Offset:]
		}
	}
	if query.Limit > 0 && query.Limit < len(entries) {
		entries = entries[:query.Limit]
	}

	return api.SessionResponse{SessionData: entries}, nil
}

func (s *BackendService) GetImage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	filename := chi.URLParam(r, "filename")

	data, err := s.uploads.Fetch(r.Context(), userID, filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			http.Error(w, "Image not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to read image", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data) // nolint:errcheck
}

// GetImageLegacy resolves a bare filename by searching across user
// partitions. Stored names carry a random suffix, so a match is unambiguous
// in practice.
func (s *BackendService) GetImageLegacy(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	userID, err := s.uploads.FindOwner(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			http.Error(w, "Image not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to read image", http.StatusInternalServerError)
		}
		return
	}

	data, err := s.uploads.Fetch(r.Context(), userID, filename)
	if err != nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data) // nolint:errcheck
}
