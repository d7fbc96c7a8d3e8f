package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/api/idtoken"
	"gorm.io/gorm"

	"notes-api/backend/config"
	"notes-api/backend/database"
	"notes-api/backend/models"
)

// ValidateIDToken is a variable to allow mocking in tests
var ValidateIDToken = func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error) {
	return idtoken.Validate(ctx, idTok, audience)
}

type googleSignInRequest struct {
	IDToken string `json:"idToken"`
}

// GoogleSignIn authenticates via a Google id-token. New emails get a
// pre-verified account; existing accounts are linked on first federated
// sign-in. An already-linked account never changes its Google subject.
func GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if config.C.Google.ClientID == "" {
		respondError(w, http.StatusBadRequest, "Google sign-in is not configured")
		return
	}

	var req googleSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		respondError(w, http.StatusBadRequest, "idToken is required")
		return
	}

	payload, err := ValidateIDToken(r.Context(), req.IDToken, config.C.Google.ClientID)
	if err != nil {
		slog.Warn("google signin failed: invalid token", "source", "auth", "error", err.Error())
		respondError(w, http.StatusBadRequest, "Invalid Google token")
		return
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		respondError(w, http.StatusBadRequest, "Invalid Google token")
		return
	}
	email = normalizeEmail(email)
	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	sub := payload.Subject

	var user models.User
	err = database.DB.Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Federated identities arrive pre-verified; no OTP is ever exchanged.
		user = models.User{Email: email, Name: name, GoogleID: &sub, Picture: picture, Verified: true}
		if err := database.DB.Create(&user).Error; err != nil {
			slog.Error("google signin: failed to create user", "source", "auth", "error", err.Error())
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		slog.Info("user created via google", "source", "auth", "user_id", user.ID, "email", email)
	case err != nil:
		slog.Error("google signin: db error", "source", "auth", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	case user.GoogleID == nil:
		user.GoogleID = &sub
		user.Verified = true
		if user.Picture == "" {
			user.Picture = picture
		}
		if err := database.DB.Save(&user).Error; err != nil {
			slog.Error("google signin: failed to link account", "source", "auth", "user_id", user.ID, "error", err.Error())
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		slog.Info("google account linked", "source", "auth", "user_id", user.ID)
	case *user.GoogleID != sub:
		slog.Warn("google signin failed: subject mismatch", "source", "auth", "user_id", user.ID)
		respondError(w, http.StatusBadRequest, "Google account mismatch")
		return
	}

	tok, err := mintCredential(w, r, &user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	slog.Info("user signed in via google", "source", "auth", "user_id", user.ID)
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Sign in successful",
		"user":    user,
		"token":   tok,
	})
}
