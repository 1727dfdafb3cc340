package compliance

import (
	"errors"
	"fmt"
)

// ErrTierUnavailable is returned for tiers the platform cannot yet deliver
// (QES until real certificate-authority integration lands).
var ErrTierUnavailable = errors.New("signature tier not yet available")

// ErrCodeExpired is returned by proof services when no live code exists for
// the pair: expired, already used, or never issued.
var ErrCodeExpired = errors.New("verification code expired or not issued")

// InsufficientFactorsError means the signer has fewer authentication methods
// configured than the tier requires. It is raised before any code is issued
// and is not retryable without reconfiguring methods.
type InsufficientFactorsError struct {
	Required   int
	Configured int
}

func (e *InsufficientFactorsError) Error() string {
	return fmt.Sprintf("tier requires %d authentication factors, signer has %d configured", e.Required, e.Configured)
}

// ProofValidationError means a submitted code or password was rejected. A
// wrong code is retryable for that factor; an expired window fails the whole
// attempt and already-validated factors are discarded with it.
type ProofValidationError struct {
	Method Method
	Reason string
}

func (e *ProofValidationError) Error() string {
	return fmt.Sprintf("%s proof rejected: %s", e.Method, e.Reason)
}
