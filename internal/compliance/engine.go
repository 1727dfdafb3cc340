package compliance

import (
	"context"
	"errors"
	"time"
)

// Signer is what the engine needs to know about the person attempting a
// signature: where challenges can be delivered and which methods they have
// configured.
type Signer struct {
	Email      string
	Phone      string
	Configured []Method
}

// Recipient returns the delivery address a challenge for m goes to.
func (s Signer) Recipient(m Method) string {
	switch m {
	case MethodSMS:
		return s.Phone
	default:
		return s.Email
	}
}

// Step is one validation performed during an attempt, kept in order for
// audit display.
type Step struct {
	Name   string    `json:"name"`
	Method Method    `json:"method,omitempty"`
	At     time.Time `json:"at"`
}

// CertificateInfo describes the qualified certificate backing a QES
// signature.
type CertificateInfo struct {
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotAfter     time.Time `json:"not_after"`
}

// TimestampInfo describes the trusted-timestamp-authority response attached
// to a QES signature.
type TimestampInfo struct {
	Authority string    `json:"authority"`
	Time      time.Time `json:"time"`
}

// Record is the compliance outcome persisted with a signed field.
type Record struct {
	Tier         Tier             `json:"tier"`
	Level        string           `json:"level"`
	LegalValue   string           `json:"legal_value"`
	Requirements []string         `json:"requirements"`
	Steps        []Step           `json:"steps"`
	Certificate  *CertificateInfo `json:"certificate,omitempty"`
	Timestamp    *TimestampInfo   `json:"timestamp,omitempty"`
	CompletedAt  time.Time        `json:"completed_at"`
}

// Engine evaluates the tier gate for signing attempts. One instance is
// constructed at server start and shared; there is no package-level state.
type Engine struct {
	proofs ProofService
	now    func() time.Time
}

func NewEngine(proofs ProofService) *Engine {
	return &Engine{proofs: proofs, now: time.Now}
}

type attemptState int

const (
	collecting attemptState = iota
	completed
	failed
)

// Attempt tracks one signing attempt through factor collection. Validated
// factors are not reusable across attempts; a failed attempt must restart
// collection.
type Attempt struct {
	policy    Policy
	signer    Signer
	validated []Method
	steps     []Step
	state     attemptState
}

// Begin opens an attempt for the requested tier. For AES it fails with
// InsufficientFactorsError before any code is issued when the signer has
// fewer eligible methods configured than the tier requires.
func (e *Engine) Begin(tier Tier, signer Signer) (*Attempt, error) {
	policy, ok := PolicyFor(tier)
	if !ok {
		return nil, &ProofValidationError{Reason: "unknown signature tier"}
	}
	if !policy.Available {
		return nil, ErrTierUnavailable
	}

	if policy.RequiredFactors > 1 {
		eligible := 0
		for _, m := range signer.Configured {
			if policy.allows(m) {
				eligible++
			}
		}
		if eligible < policy.RequiredFactors {
			return nil, &InsufficientFactorsError{
				Required:   policy.RequiredFactors,
				Configured: eligible,
			}
		}
	}

	a := &Attempt{policy: policy, signer: signer}
	a.steps = append(a.steps, Step{Name: "Signature collected", At: e.now()})
	return a, nil
}

// Remaining returns how many factors still need to validate.
func (a *Attempt) Remaining() int {
	return a.policy.RequiredFactors - len(a.validated)
}

// Failed reports whether the attempt is dead and collection must restart.
func (a *Attempt) Failed() bool {
	return a.state == failed
}

// Methods returns the methods the signer may use for this attempt.
func (a *Attempt) Methods() []Method {
	if a.policy.RequiredFactors == 0 {
		return nil
	}
	var out []Method
	for _, m := range a.signer.Configured {
		if a.policy.allows(m) && !a.used(m) {
			out = append(out, m)
		}
	}
	return out
}

func (a *Attempt) used(m Method) bool {
	for _, v := range a.validated {
		if v == m {
			return true
		}
	}
	return false
}

// Challenge issues a code for one of the attempt's eligible methods and
// returns it so the caller can dispatch it over the matching channel.
func (e *Engine) Challenge(ctx context.Context, a *Attempt, method Method) (string, error) {
	if a.state != collecting {
		return "", &ProofValidationError{Method: method, Reason: "attempt is no longer collecting factors"}
	}
	if !a.policy.allows(method) || a.used(method) {
		return "", &ProofValidationError{Method: method, Reason: "method not eligible for this attempt"}
	}
	return e.proofs.IssueCode(ctx, method, a.signer.Recipient(method))
}

// Submit validates one factor's code. A wrong code leaves the attempt open
// so that factor can be retried; an expired code window fails the attempt,
// discarding already-validated factors, and collection starts over.
func (e *Engine) Submit(ctx context.Context, a *Attempt, method Method, code string) error {
	if a.state != collecting {
		return &ProofValidationError{Method: method, Reason: "attempt is no longer collecting factors"}
	}
	if !a.policy.allows(method) {
		return &ProofValidationError{Method: method, Reason: "method not allowed for tier"}
	}
	if a.used(method) {
		return &ProofValidationError{Method: method, Reason: "factor already validated; a distinct method is required"}
	}

	ok, err := e.proofs.VerifyCode(ctx, method, a.signer.Recipient(method), code)
	if err != nil {
		a.state = failed
		if errors.Is(err, ErrCodeExpired) {
			return &ProofValidationError{Method: method, Reason: "code window expired; verification must restart"}
		}
		return err
	}
	if !ok {
		return &ProofValidationError{Method: method, Reason: "code incorrect"}
	}

	a.validated = append(a.validated, method)
	a.steps = append(a.steps, Step{
		Name:   "Identity factor verified",
		Method: method,
		At:     e.now(),
	})
	return nil
}

// Complete closes the attempt and produces the compliance record, or fails
// if factors are still outstanding.
func (e *Engine) Complete(a *Attempt) (*Record, error) {
	if a.state != collecting {
		return nil, &ProofValidationError{Reason: "attempt already closed"}
	}
	if a.Remaining() > 0 {
		return nil, &ProofValidationError{Reason: "required factors not yet validated"}
	}
	a.state = completed

	steps := append([]Step(nil), a.steps...)
	steps = append(steps, Step{Name: "Compliance record sealed", At: e.now()})

	return &Record{
		Tier:         a.policy.Tier,
		Level:        a.policy.Level,
		LegalValue:   a.policy.LegalValue,
		Requirements: append([]string(nil), a.policy.Requirements...),
		Steps:        steps,
		CompletedAt:  e.now(),
	}, nil
}
