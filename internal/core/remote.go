package core

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// remoteResult mirrors the response body of an external model server's
// predict endpoint.
type remoteResult struct {
	Success     bool    `json:"success"`
	Prediction  string  `json:"prediction"`
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error"`
}

// RemoteClassifier delegates classification to an external model server over
// HTTP. A success:false body is a domain rejection; transport faults and
// unexpected statuses are infrastructure errors. The server's own label and
// confidence are authoritative when present; only servers reporting a bare
// probability get the label derived locally.
type RemoteClassifier struct {
	client    *resty.Client
	modelType ModelType
}

var _ Classifier = &RemoteClassifier{}

func NewRemoteClassifier(baseURL string, modelType ModelType) *RemoteClassifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second)

	return &RemoteClassifier{client: client, modelType: modelType}
}

func (c *RemoteClassifier) Classify(ctx context.Context, image []byte) (Prediction, error) {
	var result remoteResult

	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", "image", bytes.NewReader(image)).
		SetFormData(map[string]string{"model_type": string(c.modelType)}).
		SetResult(&result).
		Post("/predict")
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to reach model server: %w", err)
	}

	if resp.IsError() {
		return Prediction{}, fmt.Errorf("model server returned status %d: %s", resp.StatusCode(), resp.String())
	}

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "image rejected by model server"
		}
		return Reject(reason), nil
	}

	if result.Prediction == "" {
		// Older model servers report only the raw probability.
		return Binary(result.Probability), nil
	}

	return Prediction{
		Label:       result.Prediction,
		Probability: result.Probability,
		Confidence:  result.Confidence,
	}, nil
}

func (c *RemoteClassifier) Release() {}
