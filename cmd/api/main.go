// cmd/api/main.go
// Application entry point: wires configuration, storage, modules and the
// HTTP server together.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imadgeboyega/linkup-backend/internal/auth"
	"github.com/imadgeboyega/linkup-backend/internal/common/database"
	"github.com/imadgeboyega/linkup-backend/internal/common/utils"
	"github.com/imadgeboyega/linkup-backend/internal/config"
	"github.com/imadgeboyega/linkup-backend/internal/messaging"
	"github.com/imadgeboyega/linkup-backend/internal/notifications"
)

func main() {
	// Load .env if present (development convenience)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("========================================")
	log.Println("  Linkup API")
	log.Printf("  Environment: %s", cfg.Environment)
	log.Println("========================================")

	// Step 1: PostgreSQL
	log.Println("Connecting to PostgreSQL...")
	db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("PostgreSQL connected")

	if err := runMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied")

	// Step 2: Redis (optional; auth degrades gracefully without it)
	log.Println("Connecting to Redis...")
	redisClient, err := database.NewRedisClientFromURL(cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable, continuing without session store: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// Step 3: auth module
	authRepo := auth.NewPostgresRepository(db)
	authService := auth.NewService(authRepo, redisClient, &auth.Config{
		JWTSecret:          cfg.JWTSecret,
		AccessTokenExpiry:  cfg.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.RefreshTokenExpiry,
		BCryptCost:         cfg.BCryptCost,
	})
	authMiddleware := auth.NewMiddleware(authService)
	authHandler := auth.NewHandler(authService)

	// Step 4: messaging module
	storage, err := messaging.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}

	hub := messaging.NewHub()
	go hub.Run()

	messagingRepo := messaging.NewPostgresRepository(db)
	messagingService := messaging.NewService(messagingRepo, cfg.MaxMessageLength)
	messagingService.SetPublisher(hub)
	messagingHandler := messaging.NewHandler(messagingService, storage, hub, cfg)

	// Step 5: notifications module
	var emailSender notifications.EmailSender
	if cfg.EnableEmailNotifications && cfg.SendGridAPIKey != "" {
		emailSender = notifications.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom)
		log.Println("Email notifications enabled")
	}
	var smsSender notifications.SMSSender
	if cfg.EnableSMSNotifications && cfg.TwilioAccountSID != "" {
		smsSender = notifications.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		log.Println("SMS notifications enabled")
	}

	notificationsRepo := notifications.NewPostgresRepository(db)
	notificationsService := notifications.NewService(notificationsRepo, emailSender, smsSender)
	notificationsHandler := notifications.NewHandler(notificationsService)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go notifications.NewCleaner(notificationsService, cfg.NotificationRetention).Run(cleanupCtx)

	// Step 6: router
	router := mux.NewRouter()
	router.Use(loggingMiddleware, corsMiddleware)

	auth.RegisterRoutes(router, authHandler, authMiddleware)
	messaging.RegisterRoutes(router, messagingHandler, authMiddleware)
	notifications.RegisterRoutes(router, notificationsHandler, authMiddleware)

	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if !cfg.UseS3 {
		router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.LocalUploadDir))))
	}

	// Step 7: serve
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Block until interrupted, then drain
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	cancelCleanup()
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// healthHandler reports liveness plus database reachability
func healthHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// loggingMiddleware logs each request with its duration
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

// corsMiddleware adds CORS headers for browser clients
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// runMigrations applies the schema. Statements are idempotent so startup is
// safe to repeat.
func runMigrations(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		avatar_url    TEXT,
		bio           TEXT,
		phone_number  TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id                    BIGSERIAL PRIMARY KEY,
		is_group              BOOLEAN NOT NULL DEFAULT FALSE,
		direct_key            TEXT UNIQUE,
		group_name            TEXT,
		group_image           TEXT,
		last_message_id       BIGINT,
		last_activity         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		joined_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		archived_at     TIMESTAMPTZ,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id       BIGINT NOT NULL REFERENCES users(id),
		recipient_id    BIGINT NOT NULL REFERENCES users(id),
		content_type    TEXT NOT NULL DEFAULT 'text',
		content_text    TEXT,
		media_url       TEXT,
		media_filename  TEXT,
		media_size      BIGINT,
		media_mimetype  TEXT,
		is_deleted      BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at      TIMESTAMPTZ,
		edited_at       TIMESTAMPTZ,
		original_text   TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS message_receipts (
		message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		read_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (message_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS message_deletions (
		message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		deleted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (message_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id           BIGSERIAL PRIMARY KEY,
		recipient_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		sender_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type         TEXT NOT NULL,
		message      TEXT NOT NULL,
		post_id      BIGINT,
		comment_id   BIGINT,
		story_id     BIGINT,
		is_read      BOOLEAN NOT NULL DEFAULT FALSE,
		read_at      TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_last_activity ON conversations(last_activity DESC);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_unread ON messages(recipient_id) WHERE is_deleted = FALSE;
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications(recipient_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_notifications_debounce ON notifications(recipient_id, sender_id, type, created_at);
	`
	_, err := db.Exec(schema)
	return err
}
