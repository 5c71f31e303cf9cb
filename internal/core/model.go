package core

import (
	"context"
	"errors"
	"fmt"
)

// ModelType selects which classifier handles a request. The set is closed;
// anything else is a client error, never a silent default.
type ModelType string

const (
	SkinCancer   ModelType = "skin"
	ThroatCancer ModelType = "throat"
	BreastCancer ModelType = "breast"
)

// ErrInvalidModelType is returned by Registry.Resolve for unknown model types.
var ErrInvalidModelType = errors.New("invalid model type")

// Prediction is the outcome of a classification attempt. A classifier's
// considered judgment that an image is unsuitable is carried in Rejected with
// a reason, distinct from an infrastructure fault (the error return of
// Classify). Rejections flow into history like successes do.
type Prediction struct {
	Label       string
	Probability float64
	Confidence  float64

	Rejected bool
	Reason   string
}

// Reject builds a domain-rejection prediction.
func Reject(reason string) Prediction {
	return Prediction{Rejected: true, Reason: reason}
}

// Binary builds a prediction from a sigmoid probability: label at the 0.5
// threshold, confidence in the predicted class.
func Binary(probability float64) Prediction {
	p := Prediction{Probability: probability}
	if probability > 0.5 {
		p.Label = "Cancerous"
		p.Confidence = probability
	} else {
		p.Label = "Non-cancerous"
		p.Confidence = 1 - probability
	}
	return p
}

// Classifier is the opaque classification capability. The error return is for
// infrastructure faults only; domain judgments travel inside the Prediction.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Prediction, error)

	Release()
}

type registryEntry struct {
	classifier Classifier
	weightsRef string
}

// Registry maps model types to loaded classifiers. It is built once at
// startup and never mutated, so concurrent reads need no locking.
type Registry struct {
	entries map[ModelType]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[ModelType]registryEntry)}
}

// Register binds a model type to a classifier and the weights reference it was
// loaded from. Call during startup only.
func (r *Registry) Register(modelType ModelType, classifier Classifier, weightsRef string) {
	r.entries[modelType] = registryEntry{classifier: classifier, weightsRef: weightsRef}
}

// Resolve returns the classifier and weights reference for a model type. The
// same type always resolves to the same pair for the process lifetime.
func (r *Registry) Resolve(modelType ModelType) (Classifier, string, error) {
	entry, ok := r.entries[modelType]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidModelType, modelType)
	}
	return entry.classifier, entry.weightsRef, nil
}

// Release frees every registered classifier's resources.
func (r *Registry) Release() {
	for _, entry := range r.entries {
		entry.classifier.Release()
	}
}
