package compliance

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// CodeTTL is how long an issued challenge code stays valid. The validation
// path re-checks expiry itself; the client-side resend countdown is not
// trusted.
const CodeTTL = 5 * time.Minute

// ProofService issues and verifies single-use challenge codes scoped to a
// (method, recipient) pair.
type ProofService interface {
	IssueCode(ctx context.Context, method Method, recipient string) (string, error)
	VerifyCode(ctx context.Context, method Method, recipient, code string) (bool, error)
}

type issuedCode struct {
	code     string
	issuedAt time.Time
	used     bool
}

// CodeStore is an in-process ProofService. One instance is shared per
// server; codes are keyed by (method, recipient) so reissuing replaces the
// previous code.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]*issuedCode
	now   func() time.Time
}

func NewCodeStore() *CodeStore {
	return &CodeStore{
		codes: make(map[string]*issuedCode),
		now:   time.Now,
	}
}

func codeKey(method Method, recipient string) string {
	return string(method) + ":" + recipient
}

// IssueCode generates a fresh 6-digit code for the pair, replacing any
// outstanding one, and returns it so the caller can dispatch it over the
// right channel.
func (s *CodeStore) IssueCode(_ context.Context, method Method, recipient string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[codeKey(method, recipient)] = &issuedCode{
		code:     code,
		issuedAt: s.now(),
	}
	return code, nil
}

// VerifyCode checks a submitted code. A code verifies at most once and only
// within CodeTTL of issuance, regardless of what the client believed about
// the countdown. A missing, used, or out-of-window code is ErrCodeExpired; a
// live code with the wrong digits is (false, nil).
func (s *CodeStore) VerifyCode(_ context.Context, method Method, recipient, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.codes[codeKey(method, recipient)]
	if !ok || issued.used {
		return false, ErrCodeExpired
	}
	if s.now().Sub(issued.issuedAt) > CodeTTL {
		delete(s.codes, codeKey(method, recipient))
		return false, ErrCodeExpired
	}
	if issued.code != code {
		return false, nil
	}
	issued.used = true
	return true, nil
}

// PendingSince returns when the outstanding code for the pair was issued.
// The challenge path refuses to reissue while this is non-zero, and the UI
// derives its resend countdown from it. Zero time means no live code.
func (s *CodeStore) PendingSince(method Method, recipient string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issued, ok := s.codes[codeKey(method, recipient)]; ok && !issued.used {
		if s.now().Sub(issued.issuedAt) <= CodeTTL {
			return issued.issuedAt
		}
	}
	return time.Time{}
}
