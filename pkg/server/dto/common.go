package dto

// Result represents a generic API result
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse is returned by the health and readiness probes
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Detail  string `json:"detail,omitempty"`
}
