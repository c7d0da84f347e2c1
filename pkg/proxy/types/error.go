package types

import "net/http"

// ErrorResponse is the OpenAI-style error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`

	// Status overrides the status derived from Type, e.g. to pass an
	// upstream 4xx through to the client.
	Status int `json:"-"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypePermissionDenied   = "permission_denied"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeInsufficientQuota  = "insufficient_quota"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Error codes.
const (
	CodeInvalidValue      = "invalid_value"
	CodeInvalidJSON       = "invalid_json"
	CodeRequestTooLarge   = "request_too_large"
	CodeInvalidAPIKey     = "invalid_api_key"
	CodeNoEligibleChannel = "no_eligible_channel"
	CodeBudgetExceeded    = "budget_exceeded"
	CodeRateLimited       = "rate_limited"
	CodeUpstreamError     = "upstream_error"
	CodeAllAttemptsFailed = "all_attempts_failed"
	CodeDeadlineExceeded  = "deadline_exceeded"
	CodeStreamInterrupted = "stream_interrupted"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeInternalError     = "internal_error"
)

// NewErrorResponse builds an error envelope.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError builds a 400 error.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewAuthenticationError builds a 401 error.
func NewAuthenticationError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeAuthentication, "", CodeInvalidAPIKey)
}

// NewServerError builds a 500 error.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// HTTPStatusCode returns the status to send with the error.
func (e *ErrorDetail) HTTPStatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeInsufficientQuota:
		return http.StatusPaymentRequired
	case ErrorTypePermissionDenied:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
