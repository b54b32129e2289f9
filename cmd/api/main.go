package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/numanijaz119/Audio-to-text/internal/config"
	"github.com/numanijaz119/Audio-to-text/internal/db"
	"github.com/numanijaz119/Audio-to-text/internal/handlers"
	"github.com/numanijaz119/Audio-to-text/internal/middleware"
	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/realtime"
	"github.com/numanijaz119/Audio-to-text/internal/services/audio"
	"github.com/numanijaz119/Audio-to-text/internal/services/payment"
	"github.com/numanijaz119/Audio-to-text/internal/services/transcription"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	hub := realtime.NewHub()
	go hub.Run()

	broker := realtime.NewBroker(hub, rdb)
	go broker.Run(context.Background())

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.Transaction{},
		&models.AudioFile{},
		&models.Transcription{},
		&models.PaymentOrder{},
		&models.ContactMessage{},
	); err != nil {
		log.Fatal(err)
	}

	walletSvc := wallet.NewService(gdb, cfg.CostPerMinute, cfg.DemoMinutes)
	audioSvc := audio.NewService(gdb, cfg.UploadDir, cfg.MaxUploadSize,
		decimal.NewFromInt(int64(cfg.MaxDurationMinutes)), cfg.AllowedFormats)
	paymentSvc := payment.NewService(gdb, payment.NewRazorpayClient(), walletSvc, cfg.MinRecharge)
	jobsSvc := transcription.NewService(gdb, walletSvc, transcription.NewWhisperProvider(), cfg.ProviderTimeout)
	jobsSvc.Notifier = broker

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.MaxUploadSize) + 1024*1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendBaseURL,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length, Content-Disposition",
		AllowCredentials: true,
	}))

	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	authH := &handlers.AuthHandler{DB: gdb}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              gdb,
		Wallet:          walletSvc,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	facebookH := &handlers.FacebookOAuthHandler{
		DB:               gdb,
		Wallet:           walletSvc,
		JWTSecret:        cfg.JWTSecret,
		Expires:          cfg.JWTExpiresMin,
		FacebookAppID:    cfg.FacebookAppID,
		FacebookSecret:   cfg.FacebookSecret,
		FacebookRedirect: cfg.FacebookRedirect,
		FrontendBaseURL:  cfg.FrontendBaseURL,
	}
	walletH := handlers.NewWalletHandler(walletSvc)
	paymentH := handlers.NewPaymentHandler(paymentSvc)
	audioH := handlers.NewAudioHandler(audioSvc, walletSvc)
	jobsH := handlers.NewTranscriptionHandler(jobsSvc)
	contactH := handlers.NewContactHandler(gdb)
	healthH := handlers.NewHealthHandler(gdb, rdb,
		cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "",
		cfg.OpenAIAPIKey != "")
	realtimeH := handlers.NewRealtimeHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	// public
	api.Get("/health", healthH.Check)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)
	api.Get("/auth/facebook/start", facebookH.FacebookStart)
	api.Get("/auth/facebook/callback", facebookH.FacebookCallback)
	api.Post("/auth/logout", authH.Logout)
	api.Post("/payments/webhook", paymentH.Webhook)
	api.Post("/contact",
		middleware.RateLimit(rdb, "contact", 10, time.Hour),
		contactH.Submit,
	)

	// protected (JWT)
	protected := api.Group("/",
		middleware.JWTFromCookie(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/auth/me", authH.Me)

	protected.Get("/wallet", walletH.Details)
	protected.Get("/wallet/statistics", walletH.Statistics)
	protected.Get("/wallet/transactions", walletH.Transactions)

	protected.Post("/payments/orders",
		middleware.RateLimit(rdb, "orders", 10, time.Hour),
		paymentH.CreateOrder,
	)
	protected.Post("/payments/verify", paymentH.VerifyPayment)

	protected.Post("/audio/upload",
		middleware.RateLimit(rdb, "uploads", 50, time.Hour),
		audioH.Upload,
	)
	protected.Get("/audio", audioH.List)
	protected.Delete("/audio/:id", audioH.Delete)

	protected.Post("/transcriptions",
		middleware.RateLimit(rdb, "transcriptions", 20, time.Hour),
		jobsH.Create,
	)
	protected.Get("/transcriptions", jobsH.List)
	protected.Get("/transcriptions/export", jobsH.ExportCSV)
	protected.Get("/transcriptions/:id", jobsH.Get)
	protected.Get("/transcriptions/:id/download", jobsH.Download)
	protected.Delete("/transcriptions/:id", jobsH.Delete)

	// WebSocket endpoint, authenticated via session cookie
	app.Get("/ws/updates", websocket.New(realtimeH.WebSocketHandler))

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
