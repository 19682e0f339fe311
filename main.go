package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"bingwaposters/api-gateway/config"
	"bingwaposters/api-gateway/handlers"
	"bingwaposters/api-gateway/internal/mpesa"
	"bingwaposters/api-gateway/internal/notify"
	"bingwaposters/api-gateway/internal/placid"
	"bingwaposters/api-gateway/internal/store"
	"bingwaposters/api-gateway/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.NewLogger(cfg)

	supabase, err := config.NewSupabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize Supabase: %v", err)
	}

	storeClient := store.New(supabase, cfg.SupabaseURL, logger)
	renderClient := placid.New(cfg.PlacidAPIToken, logger)
	paymentClient := mpesa.New(mpesa.Config{
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		Environment:    cfg.MpesaEnv,
		CallbackURL:    cfg.MpesaCallbackURL,
	}, logger)
	notifier := notify.NewWebhook(cfg.AdminNotifyURL, logger)

	h := handlers.NewApplicationHandler(storeClient, renderClient, paymentClient,
		notifier, logger, cfg.PlacidWebhookURL)

	app := fiber.New()

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RequestLogger(logger))

	// Health check route
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "API Gateway is healthy",
		})
	})

	api := app.Group("/api")

	// Poster generation
	api.Post("/generate", h.GeneratePoster)
	api.Post("/make/placid-callback", h.PlacidCallback)
	api.Get("/poster-status/:sessionId", h.GetPosterStatus)
	api.Get("/templates", h.ListTemplates)

	// Payments
	api.Post("/mpesa/initiate", h.InitiateMpesaPayment)
	api.Post("/mpesa/callback", h.MpesaCallback)

	logger.Infof("Starting API Gateway on port %s...", cfg.Port)
	logger.Fatal(app.Listen(":" + cfg.Port))
}
