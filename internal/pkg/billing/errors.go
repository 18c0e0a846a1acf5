package billing

import "errors"

// Error taxonomy for the payment boundary. ErrProviderUnavailable is
// retryable; ErrProviderRejected is permanent and must not be retried with
// the same request.
var (
	ErrInvalidPlan         = errors.New("billing: unknown plan")
	ErrProviderUnavailable = errors.New("billing: payment provider unavailable")
	ErrProviderRejected    = errors.New("billing: payment provider rejected the request")
	ErrInsufficientCredits = errors.New("billing: insufficient credits")
)
