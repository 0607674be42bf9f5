package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/superfun/draw-backend/internal/database"
	"github.com/superfun/draw-backend/internal/generation"
	"github.com/superfun/draw-backend/internal/handlers"
	"github.com/superfun/draw-backend/internal/ledger"
	mW "github.com/superfun/draw-backend/internal/middleware"
	"github.com/superfun/draw-backend/internal/notify"
	"github.com/superfun/draw-backend/internal/payments"
	"github.com/superfun/draw-backend/internal/store"
	"github.com/superfun/draw-backend/internal/transcribe"
)

// @title Superfun Draw Backend API
// @version 1.0
// @description Token ledger, payments and prompt services for the Superfun Draw coloring book generator
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	viper.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")

	viper.BindEnv("mailjet.api_key", "MAILJET_API_KEY")
	viper.BindEnv("mailjet.secret_key", "MAILJET_SECRET_KEY")
	viper.BindEnv("mailjet.from_email", "MAILJET_FROM_EMAIL")
	viper.BindEnv("mailjet.from_name", "MAILJET_FROM_NAME")

	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("site.base_url", "SITE_BASE_URL")
	viper.BindEnv("ledger.welcome_bonus", "LEDGER_WELCOME_BONUS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	viper.SetDefault("jwt.expiry_hours", 720)
	viper.SetDefault("ledger.welcome_bonus", 1000)
	viper.SetDefault("site.base_url", "https://draw.superfun.games")

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	accounts := store.NewPostgresAccountStore(db)
	notifier := notify.NewMailjetNotifier()
	ledgerService := ledger.NewService(
		accounts,
		notifier,
		viper.GetInt64("ledger.welcome_bonus"),
		viper.GetString("site.base_url"),
	)

	checkoutService := payments.NewCheckoutService()
	webhookProcessor := payments.NewWebhookProcessor(db, redisClient, ledgerService,
		viper.GetString("stripe.webhook_secret"))

	generationClient := generation.NewClient(viper.GetString("openai.api_key"))
	transcriber := transcribe.NewPromptTranscriber()
	defer transcriber.Close()

	ledgerHandler := handlers.NewLedgerHandler(ledgerService, redisClient)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	promptHandler := handlers.NewPromptHandler(transcriber, generationClient)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))

	// Serve OpenAPI spec
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})

	// Static file server for the web frontend
	r.Handle("/static/*", http.StripPrefix("/static/", mW.StaticFileServer("./static")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/login", ledgerHandler.Login)
		r.Post("/auth/email", ledgerHandler.SendLoginEmail)
		r.Post("/auth/logout", ledgerHandler.Logout)
		r.Get("/plans", checkoutHandler.Plans)
		r.Post("/checkout", checkoutHandler.CreateCheckout)
		r.Post("/purchase", ledgerHandler.Purchase)
		r.Post("/webhooks/stripe", webhookProcessor.HandleStripeWebhook)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/ledger/balance", ledgerHandler.Balance)
			r.Post("/ledger/spend", ledgerHandler.Spend)

			r.Post("/prompts/transcribe", promptHandler.Transcribe)
			r.Post("/prompts/improve", promptHandler.Improve)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
