package handlers

import (
	"net/http"

	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// statusFor maps an error kind to the HTTP status returned with it. A missing
// match is a normal answer, not a failure.
func statusFor(err error) int {
	switch types.KindOf(err) {
	case "", types.KindNoMatch:
		return http.StatusOK
	case types.KindMalformedInput, types.KindConfig:
		return http.StatusBadRequest
	case types.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.KindQuery:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
