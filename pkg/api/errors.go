package api

import "fmt"

// ErrorCategory classifies an agent error per the propagation policy:
// only configuration errors are fatal to the process; everything else is
// captured at the nearest boundary and converted into data.
type ErrorCategory string

const (
	ErrorCategoryConfiguration  ErrorCategory = "configuration"
	ErrorCategoryOracle         ErrorCategory = "oracle"
	ErrorCategoryTool           ErrorCategory = "tool"
	ErrorCategoryExecution      ErrorCategory = "execution"
	ErrorCategorySandbox        ErrorCategory = "sandbox"
	ErrorCategoryDependency     ErrorCategory = "dependency"
	ErrorCategoryInvalidRequest ErrorCategory = "invalid_request"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryServer         ErrorCategory = "server_error"
)

// AgentError is a structured error with category, optional parameter name,
// and message.
type AgentError struct {
	Category ErrorCategory `json:"category"`
	Param    string        `json:"param,omitempty"`
	Message  string        `json:"message"`
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Category, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// ErrorResponse wraps an AgentError for JSON serialization as the top-level
// HTTP error body.
type ErrorResponse struct {
	Error *AgentError `json:"error"`
}

// NewConfigurationError creates an error for invalid or missing configuration.
func NewConfigurationError(param, message string) *AgentError {
	return &AgentError{Category: ErrorCategoryConfiguration, Param: param, Message: message}
}

// NewOracleError creates an error for oracle transport or protocol failures.
func NewOracleError(message string) *AgentError {
	return &AgentError{Category: ErrorCategoryOracle, Message: message}
}

// NewSandboxError creates an error for sandbox provisioning or round-trip failures.
func NewSandboxError(message string) *AgentError {
	return &AgentError{Category: ErrorCategorySandbox, Message: message}
}

// NewInvalidRequestError creates an error for bad request parameters.
func NewInvalidRequestError(param, message string) *AgentError {
	return &AgentError{Category: ErrorCategoryInvalidRequest, Param: param, Message: message}
}

// NewNotFoundError creates an error for resources that cannot be found.
func NewNotFoundError(message string) *AgentError {
	return &AgentError{Category: ErrorCategoryNotFound, Message: message}
}

// NewServerError creates an error for internal failures.
func NewServerError(message string) *AgentError {
	return &AgentError{Category: ErrorCategoryServer, Message: message}
}
