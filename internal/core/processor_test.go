package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"medscan-backend/internal/core"
	"medscan-backend/internal/session"
	"medscan-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	prediction core.Prediction
	err        error
}

func (c *stubClassifier) Classify(ctx context.Context, image []byte) (core.Prediction, error) {
	return c.prediction, c.err
}

func (c *stubClassifier) Release() {}

func newTestService(t *testing.T, classifier core.Classifier) (*core.PredictionService, session.Store) {
	t.Helper()

	provider, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	uploads := storage.NewUploadStore(provider, "uploads")

	sessions, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	registry := core.NewRegistry()
	registry.Register(core.SkinCancer, classifier, "skin_cancer/model.onnx")

	return core.NewPredictionService(uploads, registry, sessions), sessions
}

func TestPredict_SuccessIsLogged(t *testing.T) {
	service, sessions := newTestService(t, &stubClassifier{prediction: core.Binary(0.85)})

	result, err := service.Predict(context.Background(), "u1", []byte("image"), "mole.jpg", core.SkinCancer)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "Cancerous", result.Prediction)
	assert.InDelta(t, 0.85, result.Probability, 1e-9)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	assert.Equal(t, "skin", result.ModelType)
	assert.Regexp(t, `^/image/u1/.+\.jpg$`, result.ImageURL)

	entries, err := sessions.Read(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result, entries[0].AnalysisResult)
	assert.Equal(t, "/image/u1/"+entries[0].ImageFilename, result.ImageURL)
}

func TestPredict_RejectionIsLogged(t *testing.T) {
	service, sessions := newTestService(t, &stubClassifier{prediction: core.Reject("not a valid medical image")})

	result, err := service.Predict(context.Background(), "u1", []byte("image"), "cat.jpg", core.SkinCancer)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "not a valid medical image", result.Error)
	assert.Empty(t, result.Prediction)

	entries, err := sessions.Read(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].AnalysisResult.Success)
}

func TestPredict_InvalidModelTypeWritesNoHistory(t *testing.T) {
	service, sessions := newTestService(t, &stubClassifier{prediction: core.Binary(0.3)})

	_, err := service.Predict(context.Background(), "u1", []byte("image"), "a.jpg", core.ModelType("xray"))
	assert.ErrorIs(t, err, core.ErrInvalidModelType)

	entries, err := sessions.Read(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPredict_EmptyUploadWritesNothing(t *testing.T) {
	service, sessions := newTestService(t, &stubClassifier{prediction: core.Binary(0.3)})

	_, err := service.Predict(context.Background(), "u1", nil, "a.jpg", core.SkinCancer)
	assert.ErrorIs(t, err, storage.ErrInvalidUpload)

	entries, err := sessions.Read(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPredict_ClassifierFaultWritesNoHistory(t *testing.T) {
	service, sessions := newTestService(t, &stubClassifier{err: errors.New("onnx runtime exploded")})

	_, err := service.Predict(context.Background(), "u1", []byte("image"), "a.jpg", core.SkinCancer)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrInvalidModelType)

	entries, err := sessions.Read(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPredict_ConcurrentSameUser(t *testing.T) {
	service, sessions := newTestService(t, &stubClassifier{prediction: core.Binary(0.6)})

	const n = 15
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("img%d.jpg", i)
			_, err := service.Predict(context.Background(), "u1", []byte("image"), name, core.SkinCancer)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := sessions.Read(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestHistory_EmptyUser(t *testing.T) {
	service, _ := newTestService(t, &stubClassifier{})

	entries, err := service.History(context.Background(), "fresh-user")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
