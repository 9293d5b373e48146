package client

import "time"

// Status is the response of GET {base}/status.
type Status struct {
	Owned     bool      `json:"owned"`
	Alive     bool      `json:"alive"`
	PID       int       `json:"pid,omitempty"`
	URL       string    `json:"url,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Reachable bool      `json:"reachable"`
}

// StartResult is the response of POST {base}/start.
type StartResult struct {
	Outcome string `json:"outcome"`
	URL     string `json:"url"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
