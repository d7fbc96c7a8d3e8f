package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"notes-api/backend/authsignal"
	"notes-api/backend/challenge"
	"notes-api/backend/config"
	"notes-api/backend/database"
	"notes-api/backend/middleware"
	"notes-api/backend/models"
	"notes-api/backend/session"
	"notes-api/backend/token"
)

var (
	// Challenges generates and verifies OTP challenges (registration path).
	Challenges *challenge.Service
	// SignIn issues sign-in challenges, optionally via the risk provider.
	SignIn *authsignal.Verifier
)

// InitAuth wires the auth handlers to their services. Called once from main;
// tests substitute fakes here.
func InitAuth(challenges *challenge.Service, signIn *authsignal.Verifier) {
	Challenges = challenges
	SignIn = signIn
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail reports whether the address looks deliverable enough to
// register.
func ValidateEmail(email string) bool {
	return emailRe.MatchString(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseDOB accepts a bare date or a full RFC 3339 timestamp.
func parseDOB(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type signupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	DOB   string `json:"dob"`
}

func Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	var errs []fieldError
	if !ValidateEmail(email) {
		errs = append(errs, fieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(name) < 2 {
		errs = append(errs, fieldError{Field: "name", Message: "must be at least 2 characters"})
	}
	dob, err := parseDOB(req.DOB)
	if req.DOB == "" || err != nil {
		errs = append(errs, fieldError{Field: "dob", Message: "must be an ISO 8601 date"})
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	var existing models.User
	if err := database.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		slog.Warn("signup failed: email exists", "source", "auth", "email", email)
		respondError(w, http.StatusBadRequest, "User already exists")
		return
	}

	user := models.User{Email: email, Name: name, DOB: &dob}
	if err := database.DB.Create(&user).Error; err != nil {
		slog.Error("signup failed: db error", "source", "auth", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Registration always verifies against a locally generated code; the risk
	// provider only evaluates sign-ins.
	issued, err := Challenges.Issue(r.Context(), email)
	if err != nil {
		slog.Error("signup: failed to issue challenge", "source", "auth", "email", email, "error", err.Error())
	}

	slog.Info("user registered", "source", "auth", "user_id", user.ID, "email", email)

	resp := map[string]any{
		"message": "User registered successfully. Please verify your email with OTP.",
		"userId":  user.ID,
		"otpSent": err == nil,
	}
	if !config.IsProduction() && issued != nil {
		// Test convenience only; production deployments deliver out-of-band.
		resp["otp"] = issued.Code
		resp["expiresAt"] = issued.ExpiresAt
	}
	respondJSON(w, http.StatusCreated, resp)
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.OTP == "" {
		respondError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}
	email := normalizeEmail(req.Email)

	var user models.User
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	if err := Challenges.Verify(r.Context(), email, req.OTP); err != nil {
		slog.Warn("email verification failed", "source", "auth", "email", email, "reason", err.Error())
		respondChallengeError(w, err)
		return
	}

	user.Verified = true
	if err := database.DB.Save(&user).Error; err != nil {
		slog.Error("failed to mark user verified", "source", "auth", "user_id", user.ID, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.Info("email verified", "source", "auth", "user_id", user.ID, "email", email)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

type signinRequest struct {
	Email string `json:"email"`
}

func Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !ValidateEmail(normalizeEmail(req.Email)) {
		respondValidation(w, []fieldError{{Field: "email", Message: "must be a valid email address"}})
		return
	}
	email := normalizeEmail(req.Email)

	var user models.User
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		slog.Warn("signin failed: user not found", "source", "auth", "email", email)
		respondError(w, http.StatusUnauthorized, "User not found. Please sign up first.")
		return
	}
	if !user.Verified {
		respondError(w, http.StatusUnauthorized, "Please verify your email first")
		return
	}

	issued, outcome, err := SignIn.Issue(r.Context(), email)
	if err != nil {
		if errors.Is(err, authsignal.ErrSignInBlocked) {
			slog.Warn("signin blocked", "source", "auth", "email", email)
			respondError(w, http.StatusForbidden, "Sign-in blocked")
			return
		}
		slog.Error("signin: failed to issue challenge", "source", "auth", "email", email, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Failed to send OTP")
		return
	}

	if outcome == authsignal.OutcomePreApproved {
		// Provider vouched for this sign-in; no code is pending.
		tok, err := mintCredential(w, r, &user)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		slog.Info("user signed in (pre-approved)", "source", "auth", "user_id", user.ID)
		respondJSON(w, http.StatusOK, map[string]any{
			"message":     "Sign in successful",
			"user":        user,
			"token":       tok,
			"preApproved": true,
		})
		return
	}

	resp := map[string]any{
		"message": "OTP sent to your email. Please verify to sign in.",
		"email":   user.Email,
	}
	if !config.IsProduction() && issued != nil && issued.Code != "" {
		resp["otp"] = issued.Code
		resp["expiresAt"] = issued.ExpiresAt
	}
	respondJSON(w, http.StatusOK, resp)
}

func VerifySignin(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.OTP == "" {
		respondError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}
	email := normalizeEmail(req.Email)

	var user models.User
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if !user.Verified {
		respondError(w, http.StatusUnauthorized, "Please verify your email first")
		return
	}

	if err := SignIn.Verify(r.Context(), email, req.OTP); err != nil {
		slog.Warn("signin verification failed", "source", "auth", "email", email, "reason", err.Error())
		respondChallengeError(w, err)
		return
	}

	tok, err := mintCredential(w, r, &user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.Info("user signed in", "source", "auth", "user_id", user.ID, "email", email)
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Sign in successful",
		"user":    user,
		"token":   tok,
	})
}

func Logout(w http.ResponseWriter, r *http.Request) {
	if config.C.Session.Transport == "cookie" {
		session.Clear(w, r)
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me returns the identity resolved by the authorization gate.
func Me(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := database.DB.First(&user, middleware.UserID(r)).Error; err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": user})
}

// mintCredential issues the session credential: always a bearer JWT, plus a
// cookie session when that transport is configured.
func mintCredential(w http.ResponseWriter, r *http.Request, user *models.User) (string, error) {
	tok, err := token.Generate(user.ID, user.Email, []byte(config.C.Session.Secret), config.C.Session.Timeout)
	if err != nil {
		slog.Error("failed to mint token", "source", "auth", "user_id", user.ID, "error", err.Error())
		return "", err
	}
	if config.C.Session.Transport == "cookie" {
		if err := session.Create(w, r, user.ID, user.Email); err != nil {
			slog.Error("failed to create session", "source", "auth", "user_id", user.ID, "error", err.Error())
			return "", err
		}
	}
	return tok, nil
}

// respondChallengeError maps challenge failures to their HTTP shape. Each
// reason gets a distinct message: expired and exhausted challenges need a
// re-issue, an invalid code is retryable against the same challenge.
func respondChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, challenge.ErrNotFound):
		respondError(w, http.StatusBadRequest, "OTP expired or not found")
	case errors.Is(err, challenge.ErrExpired):
		respondError(w, http.StatusBadRequest, "OTP expired")
	case errors.Is(err, challenge.ErrTooManyAttempts):
		respondError(w, http.StatusBadRequest, "Too many attempts")
	case errors.Is(err, challenge.ErrInvalidCode):
		respondError(w, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, challenge.ErrProviderVerify):
		slog.Error("provider verification failed", "source", "auth", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Failed to verify OTP")
	default:
		slog.Error("challenge verification error", "source", "auth", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
