package challenge

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound        = errors.New("challenge not found")
	ErrExpired         = errors.New("challenge expired")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrInvalidCode     = errors.New("invalid code")
	ErrDeliveryFailed  = errors.New("challenge delivery failed")
	ErrProviderVerify  = errors.New("provider verification failed")
)

// Record is an outstanding OTP challenge for one email. At most one record
// exists per email; issuing a new challenge replaces the old one.
type Record struct {
	CodeHash      string `json:"code_hash"`
	ProviderToken string `json:"provider_token,omitempty"`
	ExpiresAt     int64  `json:"expires_at"`
	Attempts      int    `json:"attempts"`
	CreatedAt     int64  `json:"created_at"`
}

// Store persists challenge records keyed by email. Replace and
// IncrementAttempts must be atomic per email so that concurrent verifications
// never race on a stale attempt count.
type Store interface {
	Replace(ctx context.Context, email string, rec *Record, ttl time.Duration) error
	Get(ctx context.Context, email string) (*Record, error)
	IncrementAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
}

// ExternalValidator validates a presented code against an external provider's
// continuation token. Used for challenges whose real code was never known
// locally.
type ExternalValidator interface {
	ValidateChallenge(ctx context.Context, token, code string) (bool, error)
}

// Issued describes a freshly created challenge. Code is empty when the
// challenge was delegated to an external provider (delivery happens
// out-of-band).
type Issued struct {
	Code      string
	ExpiresAt time.Time
	Delegated bool
}

// Service generates and verifies email OTP challenges.
type Service struct {
	store       Store
	ttl         time.Duration
	maxAttempts int
	external    ExternalValidator // nil when no provider is configured
}

func NewService(store Store, ttl time.Duration, maxAttempts int, external ExternalValidator) *Service {
	return &Service{
		store:       store,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		external:    external,
	}
}

// generateCode returns a uniformly distributed 6-digit code, leading zeros
// preserved.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue creates a local challenge for email, replacing any prior one and
// resetting the attempt counter.
func (s *Service) Issue(ctx context.Context, email string) (*Issued, error) {
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	rec := &Record{
		CodeHash:  string(hash),
		ExpiresAt: expiresAt.Unix(),
		CreatedAt: now.Unix(),
	}

	if err := s.store.Replace(ctx, email, rec, s.ttl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return &Issued{Code: code, ExpiresAt: expiresAt}, nil
}

// IssueDelegated records a challenge held by an external provider. Only the
// provider's continuation token is stored; the code is delivered out-of-band
// and never known locally.
func (s *Service) IssueDelegated(ctx context.Context, email, providerToken string) (*Issued, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)
	rec := &Record{
		ProviderToken: providerToken,
		ExpiresAt:     expiresAt.Unix(),
		CreatedAt:     now.Unix(),
	}

	if err := s.store.Replace(ctx, email, rec, s.ttl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return &Issued{ExpiresAt: expiresAt, Delegated: true}, nil
}

// Verify checks a presented code against the active challenge for email.
// Precedence is fixed: missing record, then expiry, then attempt limit, then
// code comparison. Expired and exhausted challenges fail even with the
// correct code; the caller must re-issue. On success the record is deleted.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	rec, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading challenge: %w", err)
	}

	if time.Now().Unix() > rec.ExpiresAt {
		if err := s.store.Delete(ctx, email); err != nil {
			slog.Warn("failed to delete expired challenge", "source", "challenge", "error", err.Error())
		}
		return ErrExpired
	}

	if rec.Attempts >= s.maxAttempts {
		return ErrTooManyAttempts
	}

	if rec.ProviderToken != "" {
		return s.verifyDelegated(ctx, email, rec.ProviderToken, code)
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		return s.recordFailure(ctx, email)
	}

	if err := s.store.Delete(ctx, email); err != nil {
		return fmt.Errorf("consuming challenge: %w", err)
	}
	return nil
}

// verifyDelegated asks the external provider whether the code is valid. A
// transport fault is not recoverable locally: the real code was never
// disclosed to us, so there is no safe fallback comparison.
func (s *Service) verifyDelegated(ctx context.Context, email, providerToken, code string) error {
	if s.external == nil {
		return ErrProviderVerify
	}

	valid, err := s.external.ValidateChallenge(ctx, providerToken, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderVerify, err)
	}
	if !valid {
		return s.recordFailure(ctx, email)
	}

	if err := s.store.Delete(ctx, email); err != nil {
		return fmt.Errorf("consuming challenge: %w", err)
	}
	return nil
}

// recordFailure bumps the attempt counter. The attempt that reaches the limit
// already reports ErrTooManyAttempts so the caller knows the challenge is
// spent rather than retryable.
func (s *Service) recordFailure(ctx context.Context, email string) error {
	attempts, err := s.store.IncrementAttempts(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("recording failed attempt: %w", err)
	}
	if err == nil && attempts >= s.maxAttempts {
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}
