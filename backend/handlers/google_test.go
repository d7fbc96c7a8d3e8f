package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"google.golang.org/api/idtoken"

	"notes-api/backend/config"
	"notes-api/backend/database"
	"notes-api/backend/models"
)

// mockIDToken substitutes the Google validator for the duration of a test.
func mockIDToken(t *testing.T, fn func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error)) {
	t.Helper()
	orig := ValidateIDToken
	ValidateIDToken = fn
	t.Cleanup(func() { ValidateIDToken = orig })
}

func googlePayload(sub, email, name string) *idtoken.Payload {
	return &idtoken.Payload{
		Subject: sub,
		Claims: map[string]any{
			"email":   email,
			"name":    name,
			"picture": "https://example.com/photo.jpg",
		},
	}
}

// RED: Test google sign-in is refused when no client id is configured
func TestGoogleSignIn_NotConfigured(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = ""

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{
		"idToken": "some-token",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if resp["error"] != "Google sign-in is not configured" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

// RED: Test a missing idToken is rejected
func TestGoogleSignIn_MissingToken(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = "client-id"

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if resp["error"] != "idToken is required" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

// RED: Test an invalid id-token is rejected
func TestGoogleSignIn_InvalidToken(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = "client-id"
	mockIDToken(t, func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error) {
		return nil, errors.New("token expired")
	})

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{
		"idToken": "bad-token",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if resp["error"] != "Invalid Google token" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

// RED: Test a new google user is created pre-verified and signed in
func TestGoogleSignIn_NewUser(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = "client-id"
	mockIDToken(t, func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error) {
		if audience != "client-id" {
			t.Errorf("Expected audience 'client-id', got %q", audience)
		}
		return googlePayload("google-sub-1", "New@Example.com", "New User"), nil
	})

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{
		"idToken": "good-token",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, resp)
	}
	if tok, _ := resp["token"].(string); tok == "" {
		t.Error("Expected a session token")
	}

	var user models.User
	if err := database.DB.Where("email = ?", "new@example.com").First(&user).Error; err != nil {
		t.Fatalf("User not created: %v", err)
	}
	if !user.Verified {
		t.Error("Federated user should be created verified")
	}
	if user.GoogleID == nil || *user.GoogleID != "google-sub-1" {
		t.Error("Google subject not stored")
	}
}

// RED: Test an existing password-less account gets linked on first google sign-in
func TestGoogleSignIn_LinksExistingUser(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = "client-id"

	signupAndVerify(t, "linkme@example.com")
	mockIDToken(t, func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error) {
		return googlePayload("google-sub-2", "linkme@example.com", "Link Me"), nil
	})

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{
		"idToken": "good-token",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, resp)
	}

	var user models.User
	if err := database.DB.Where("email = ?", "linkme@example.com").First(&user).Error; err != nil {
		t.Fatalf("User not found: %v", err)
	}
	if user.GoogleID == nil || *user.GoogleID != "google-sub-2" {
		t.Error("Expected account to be linked to the google subject")
	}
}

// RED: Test a linked account rejects a different google subject
func TestGoogleSignIn_SubjectMismatch(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = "client-id"

	sub := "google-sub-3"
	user := models.User{Email: "taken@example.com", Name: "Taken", GoogleID: &sub, Verified: true}
	if err := database.DB.Create(&user).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	mockIDToken(t, func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error) {
		return googlePayload("different-sub", "taken@example.com", "Taken"), nil
	})

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{
		"idToken": "good-token",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if resp["error"] != "Google account mismatch" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

// RED: Test a payload without an email claim is rejected
func TestGoogleSignIn_MissingEmailClaim(t *testing.T) {
	setupTest(t)
	config.C.Google.ClientID = "client-id"
	mockIDToken(t, func(ctx context.Context, idTok, audience string) (*idtoken.Payload, error) {
		return &idtoken.Payload{Subject: "sub", Claims: map[string]any{}}, nil
	})

	rec, resp := postJSON(t, GoogleSignIn, "/api/auth/google", map[string]string{
		"idToken": "good-token",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if resp["error"] != "Invalid Google token" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}
