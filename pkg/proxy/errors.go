package proxy

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/limits"
	"weaver-hq/loom/pkg/proxy/types"
	"weaver-hq/loom/pkg/routing"
)

// HandleError maps a routing error to the wire envelope:
//
//	no eligible channel  503
//	budget exceeded      402
//	rate limited         429
//	upstream fatal       upstream 4xx status, else 400
//	all attempts failed  502
//	deadline exceeded    504
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	switch {
	case errors.Is(err, routing.ErrNoEligibleChannel), errors.Is(err, domain.ErrTenantNotFound):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeServiceUnavailable, "model", types.CodeNoEligibleChannel)

	case errors.Is(err, limits.ErrBudgetExceeded):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeInsufficientQuota, "", types.CodeBudgetExceeded)

	case errors.Is(err, limits.ErrRateLimited):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeRateLimitExceeded, "", types.CodeRateLimited)

	case errors.Is(err, dispatch.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeGatewayTimeout, "", types.CodeDeadlineExceeded)

	case errors.Is(err, dispatch.ErrUpstreamFatal):
		resp := types.NewInvalidRequestError(err.Error(), "", types.CodeUpstreamError)
		var up *dispatch.UpstreamError
		if errors.As(err, &up) && up.StatusCode >= 400 && up.StatusCode < 500 {
			resp.Error.Status = up.StatusCode
		}
		return resp

	case errors.Is(err, dispatch.ErrAllAttemptsFailed):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeBadGateway, "", types.CodeAllAttemptsFailed)

	case errors.Is(err, dispatch.ErrStreamInterrupted):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeBadGateway, "", types.CodeStreamInterrupted)
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}

// RetryAfter returns how long a denied caller should wait, or 0.
func RetryAfter(err error) time.Duration {
	var le *limits.LimitError
	if errors.As(err, &le) {
		return le.RetryAfter
	}
	return 0
}

// WriteError writes the envelope for err, with a Retry-After header on
// limit denials.
func WriteError(w http.ResponseWriter, err error) error {
	if d := RetryAfter(err); d > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
	}
	return WriteErrorResponse(w, HandleError(err))
}
