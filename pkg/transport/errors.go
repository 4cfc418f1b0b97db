package transport

import (
	"encoding/json"
	"net/http"

	"github.com/reagent-dev/reagent/pkg/api"
)

// HTTPStatusFromError maps an AgentError category to an HTTP status code.
// Transport-level conditions (oversized body, unsupported media type) are
// handled by the adapter before this mapping applies.
func HTTPStatusFromError(err *api.AgentError) int {
	switch err.Category {
	case api.ErrorCategoryInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorCategoryNotFound:
		return http.StatusNotFound
	case api.ErrorCategoryOracle:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error body in the pkg/api wrapper
// format with the given status code.
func WriteErrorResponse(w http.ResponseWriter, agentErr *api.AgentError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: agentErr})
}

// WriteAgentError writes an error response, deriving the status code from
// the error category.
func WriteAgentError(w http.ResponseWriter, agentErr *api.AgentError) {
	WriteErrorResponse(w, agentErr, HTTPStatusFromError(agentErr))
}
