package authsignal

import (
	"context"
	"errors"
	"log/slog"

	"notes-api/backend/challenge"
)

// ErrSignInBlocked is returned when the provider denies the sign-in outright.
// No challenge is created.
var ErrSignInBlocked = errors.New("sign-in blocked by risk provider")

// Outcome of a sign-in challenge request.
type Outcome int

const (
	// OutcomeChallenge means a passcode is pending for the identity.
	OutcomeChallenge Outcome = iota
	// OutcomePreApproved means the provider allowed the sign-in with no
	// challenge; no code is pending.
	OutcomePreApproved
)

// signInAction is the provider action tracked for sign-in evaluations.
const signInAction = "signIn"

// Verifier issues sign-in challenges, delegating to the provider when a
// client is configured and falling back to local generation on any provider
// fault. Verification of delegated challenges happens through the
// challenge.Service's external validator; no fallback exists there.
type Verifier struct {
	challenges *challenge.Service
	client     *Client // nil disables delegation
}

func NewVerifier(challenges *challenge.Service, client *Client) *Verifier {
	return &Verifier{challenges: challenges, client: client}
}

// Issue creates a sign-in challenge for email. A provider fault during
// issuance is recoverable: the local generator takes over and the request
// never fails for it.
func (v *Verifier) Issue(ctx context.Context, email string) (*challenge.Issued, Outcome, error) {
	if v.client == nil {
		issued, err := v.challenges.Issue(ctx, email)
		return issued, OutcomeChallenge, err
	}

	result, err := v.client.Track(ctx, email, signInAction)
	if err != nil {
		slog.Warn("provider track failed, falling back to local challenge",
			"source", "authsignal", "email", email, "error", err.Error())
		issued, err := v.challenges.Issue(ctx, email)
		return issued, OutcomeChallenge, err
	}

	switch result.State {
	case StateChallengeRequired:
		issued, err := v.challenges.IssueDelegated(ctx, email, result.Token)
		return issued, OutcomeChallenge, err
	case StateAllow:
		slog.Info("provider pre-approved sign-in", "source", "authsignal", "email", email)
		return nil, OutcomePreApproved, nil
	case StateBlock:
		slog.Warn("provider blocked sign-in", "source", "authsignal", "email", email)
		return nil, OutcomeChallenge, ErrSignInBlocked
	default:
		slog.Warn("provider returned unknown state, falling back to local challenge",
			"source", "authsignal", "email", email, "state", result.State)
		issued, err := v.challenges.Issue(ctx, email)
		return issued, OutcomeChallenge, err
	}
}

// Verify checks a presented sign-in code. Delegated records are validated by
// the provider via the challenge service's external validator.
func (v *Verifier) Verify(ctx context.Context, email, code string) error {
	return v.challenges.Verify(ctx, email, code)
}
