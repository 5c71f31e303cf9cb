package api

import "time"

// PredictionResult is the response body for POST /predict and the payload
// recorded in a user's session history. Field names mirror what the frontend
// already consumes.
//
// Confidence is the confidence in the predicted class: the raw probability if
// it exceeds 0.5, otherwise 1 - probability.
type PredictionResult struct {
	Success     bool    `json:"success"`
	Prediction  string  `json:"prediction,omitempty"`
	Probability float64 `json:"probability,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Error       string  `json:"error,omitempty"`

	ImageURL  string    `json:"image_url"`
	Timestamp time.Time `json:"timestamp"`
	ModelType string    `json:"model_type"`
}

// SessionEntry is one element of a user's session history, oldest first.
type SessionEntry struct {
	Timestamp      time.Time        `json:"timestamp"`
	ImageFilename  string           `json:"image_filename"`
	AnalysisResult PredictionResult `json:"analysis_result"`
}

type SessionResponse struct {
	SessionData []SessionEntry `json:"session_data"`
}

// SessionQuery holds optional pagination params for GET /session/{user_id}.
// A zero Limit means the full log is returned.
type SessionQuery struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
