package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"weaver-hq/loom/pkg/proxy/types"
)

// Headers read from incoming requests.
const (
	AuthorizationHeader    = "Authorization"
	SessionIDHeader        = "X-Session-ID"
	PreferredChannelHeader = "X-Loom-Preferred-Channel"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 10 * 1024 * 1024

// NewValidator returns a validator that reports fields by their JSON
// names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseChatCompletionRequest reads, decodes and validates a chat
// completion request. Bodies over maxBytes are rejected.
func ParseChatCompletionRequest(r *http.Request, maxBytes int64, v *validator.Validate) (*types.ChatCompletionRequest, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
			Status:  http.StatusRequestEntityTooLarge,
		}
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if err := v.Struct(&req); err != nil {
		return nil, validationError(err)
	}
	return &req, nil
}

// validationError reports the first failed rule.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &RequestError{Message: err.Error(), Code: types.CodeInvalidValue}
	}
	fe := verrs[0]

	// Drop the struct name: "ChatCompletionRequest.messages[0].role".
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gte", "lte", "eq":
		msg = fmt.Sprintf("%s must be %s %s", field, comparison[fe.Tag()], fe.Param())
	default:
		msg = fmt.Sprintf("%s failed the %q rule", field, fe.Tag())
	}
	return &RequestError{Message: msg, Code: types.CodeInvalidValue, Param: field}
}

var comparison = map[string]string{
	"gte": "at least",
	"lte": "at most",
	"eq":  "equal to",
}

// ExtractAPIKey returns the bearer token of the request, or "".
func ExtractAPIKey(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get(AuthorizationHeader), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AffinityKey returns the cache affinity key of a request: the session
// header when present, the request's user field otherwise.
func AffinityKey(r *http.Request, req *types.ChatCompletionRequest) string {
	if s := strings.TrimSpace(r.Header.Get(SessionIDHeader)); s != "" {
		return s
	}
	return req.User
}

// PreferredChannel returns the channel a request is pinned to: the
// header when the tenant lets callers choose, the tenant's configured
// channel otherwise.
func PreferredChannel(r *http.Request, configured string, fromHeader bool) string {
	if fromHeader {
		if s := strings.TrimSpace(r.Header.Get(PreferredChannelHeader)); s != "" {
			return s
		}
	}
	return configured
}

// RequestError is a malformed request.
type RequestError struct {
	Message string
	Code    string
	Param   string

	// Status defaults to 400.
	Status int
}

func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts the error to the wire envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	resp := types.NewInvalidRequestError(e.Message, e.Param, e.Code)
	resp.Error.Status = e.Status
	return resp
}
