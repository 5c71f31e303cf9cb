package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medscan-backend/internal/session"
	"medscan-backend/internal/storage"
	"medscan-backend/pkg/api"
)

// PredictionService coordinates a prediction request: store the upload,
// resolve the classifier, classify, record history, return the result.
type PredictionService struct {
	uploads  *storage.UploadStore
	registry *Registry
	sessions session.Store
}

func NewPredictionService(uploads *storage.UploadStore, registry *Registry, sessions session.Store) *PredictionService {
	return &PredictionService{uploads: uploads, registry: registry, sessions: sessions}
}

// Predict runs the full pipeline for one request. The image is durably stored
// before classification is attempted, and classification completes before the
// history write, so a visible history entry always refers to a persisted
// image. Ingestion and dispatch failures abort before any history mutation;
// classifier domain rejections are a normal outcome and are recorded with
// success=false. An upload orphaned by a later failure stays on disk: the
// session log, not the upload partition, is the source of truth.
func (s *PredictionService) Predict(ctx context.Context, userID string, image []byte, originalFilename string, modelType ModelType) (api.PredictionResult, error) {
	record, err := s.uploads.Ingest(ctx, userID, image, originalFilename)
	if err != nil {
		return api.PredictionResult{}, err
	}

	classifier, weightsRef, err := s.registry.Resolve(modelType)
	if err != nil {
		return api.PredictionResult{}, err
	}

	prediction, err := classifier.Classify(ctx, image)
	if err != nil {
		return api.PredictionResult{}, fmt.Errorf("classification failed for model %s (%s): %w", modelType, weightsRef, err)
	}

	result := api.PredictionResult{
		Success:   !prediction.Rejected,
		ImageURL:  fmt.Sprintf("/image/%s/%s", userID, record.StoredFilename),
		Timestamp: time.Now().UTC(),
		ModelType: string(modelType),
	}
	if prediction.Rejected {
		result.Error = prediction.Reason
	} else {
		result.Prediction = prediction.Label
		result.Probability = prediction.Probability
		result.Confidence = prediction.Confidence
	}

	entry := api.SessionEntry{
		Timestamp:      result.Timestamp,
		ImageFilename:  record.StoredFilename,
		AnalysisResult: result,
	}
	if err := s.sessions.Append(ctx, userID, entry); err != nil {
		return api.PredictionResult{}, fmt.Errorf("failed to record session history: %w", err)
	}

	slog.Info("prediction completed",
		"user_id", userID,
		"model_type", modelType,
		"success", result.Success,
		"image", record.StoredFilename,
	)

	return result, nil
}

// History returns the user's full session log, oldest first.
func (s *PredictionService) History(ctx context.Context, userID string) ([]api.SessionEntry, error) {
	return s.sessions.Read(ctx, userID)
}
