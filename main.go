package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"notes-api/backend/authsignal"
	"notes-api/backend/challenge"
	"notes-api/backend/config"
	"notes-api/backend/database"
	"notes-api/backend/handlers"
	"notes-api/backend/logger"
	"notes-api/backend/middleware"
	"notes-api/backend/session"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Session secret backs both the cookie store and the JWT signing key
	if err := session.Init(); err != nil {
		log.Fatal("Failed to init session:", err)
	}

	if err := database.Init(); err != nil {
		log.Fatal("Failed to init database:", err)
	}

	// Initialize structured logging
	slog.SetDefault(slog.New(logger.NewDBHandler(database.DB)))
	go logger.CleanupOldLogs(database.DB, config.C.Logs.Retention)

	// Challenge store
	rdb := redis.NewClient(&redis.Options{Addr: config.C.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal("Failed to connect to redis:", err)
	}

	// Provider client is built once from validated config and injected; it is
	// nil when no API secret is configured and everything stays local.
	var providerClient *authsignal.Client
	var external challenge.ExternalValidator
	if config.C.Authsignal.APISecret != "" {
		providerClient = authsignal.NewClient(config.C.Authsignal.APIURL, config.C.Authsignal.APISecret, config.C.Authsignal.Timeout)
		external = providerClient
		slog.Info("challenge delegation enabled", "source", "main", "provider_url", config.C.Authsignal.APIURL)
	}

	challenges := challenge.NewService(challenge.NewRedisStore(rdb), config.C.OTP.TTL, config.C.OTP.MaxAttempts, external)
	handlers.InitAuth(challenges, authsignal.NewVerifier(challenges, providerClient))

	slog.Info("server starting", "source", "main", "listen", config.C.Listen, "environment", config.C.Environment)

	authRateLimiter := middleware.NewRateLimiter(10, time.Minute)
	apiRateLimiter := middleware.NewRateLimiter(config.C.RateLimit.Requests, config.C.RateLimit.Window)

	mux := http.NewServeMux()

	// Health check (unauthenticated, for load balancers)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
	})

	// Auth routes (public, tightly rate limited)
	mux.HandleFunc("POST /api/auth/signup", authRateLimiter.LimitFunc(handlers.Signup))
	mux.HandleFunc("POST /api/auth/verify-otp", authRateLimiter.LimitFunc(handlers.VerifyOTP))
	mux.HandleFunc("POST /api/auth/signin", authRateLimiter.LimitFunc(handlers.Signin))
	mux.HandleFunc("POST /api/auth/verify-signin", authRateLimiter.LimitFunc(handlers.VerifySignin))
	mux.HandleFunc("POST /api/auth/google", authRateLimiter.LimitFunc(handlers.GoogleSignIn))
	mux.HandleFunc("POST /api/auth/logout", handlers.Logout)

	// Protected routes (identity resolved by the authorization gate only)
	mux.HandleFunc("GET /api/auth/me", middleware.RequireAuth(handlers.Me))
	mux.HandleFunc("GET /api/notes", middleware.RequireAuth(handlers.GetNotes))
	mux.HandleFunc("POST /api/notes", middleware.RequireAuth(handlers.CreateNote))
	mux.HandleFunc("PUT /api/notes/{id}", middleware.RequireAuth(handlers.UpdateNote))
	mux.HandleFunc("DELETE /api/notes/{id}", middleware.RequireAuth(handlers.DeleteNote))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Route not found"}`))
	})

	var handler http.Handler = apiRateLimiter.Limit(mux)
	if config.C.Session.Transport == "cookie" {
		// Cookie credentials travel automatically cross-site; CSRF guard needed
		handler = middleware.NewCSRFProtection(config.C.Session.Secret).Protect(handler)
	}
	handler = middleware.CORS(config.C.CORS.AllowedOrigins)(handler)
	handler = middleware.SecurityHeaders(handler)

	if config.C.TLS.Enabled {
		slog.Info("starting server with TLS", "source", "main")
		log.Fatal(http.ListenAndServeTLS(config.C.Listen, config.C.TLS.Cert, config.C.TLS.Key, handler))
	} else {
		log.Fatal(http.ListenAndServe(config.C.Listen, handler))
	}
}
