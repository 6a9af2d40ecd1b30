package dto

import "github.com/soundprediction/go-servicegraph/pkg/types"

// AskRequest is a question submitted as JSON or as a form.
type AskRequest struct {
	Question string `json:"question" form:"question" binding:"required"`
	// Strategy is "cypher" or "vector"; empty uses the server default.
	Strategy string `json:"strategy" form:"strategy"`
}

// AskResponse carries the answer and whatever context produced it.
type AskResponse struct {
	Strategy  string               `json:"strategy"`
	Question  string               `json:"question"`
	Answer    string               `json:"answer"`
	Cypher    string               `json:"cypher,omitempty"`
	Context   string               `json:"context,omitempty"`
	Rows      []map[string]any     `json:"rows,omitempty"`
	Matches   []types.ProblemMatch `json:"matches,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorKind string               `json:"error_kind,omitempty"`
}
