package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"roomframe/internal/config"
	"roomframe/internal/handlers"
	"roomframe/internal/logging"
	"roomframe/internal/models"
	"roomframe/internal/platform"
	"roomframe/internal/services"
	"roomframe/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting roomframe server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Storage: %s)", cfg.Port, cfg.StorageBackend)

	if cfg.BotToken == "" {
		log.Fatal("❌ BOT_TOKEN environment variable is required")
	}

	rulesCfg, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Fatalf("❌ Failed to load membership rules: %v", err)
	}
	if rulesCfg.Enabled() {
		log.Printf("🛡️  Membership rules loaded (%d domain(s), %d guide(s))",
			len(rulesCfg.RestrictedDomains), len(rulesCfg.Guides))
	}

	store, cleanup := newStore(cfg)
	defer cleanup()

	client := platform.NewHTTPClient(cfg.APIBaseURL, cfg.BotToken)

	// Core services
	registry := services.NewRegistry()
	bus := services.NewEventBus()
	lexicon := services.NewLexicon()
	rules := services.NewMembershipRules(rulesCfg, client, registry, bus)
	spawner := services.NewSpawner(client, registry, rules, store, bus)
	dispatcher := services.NewDispatcher(client, registry, spawner, rules, lexicon, store, bus, cfg.MaxStartupRooms)

	services.InitMetrics(registry)

	// Built-in help command, lowest priority so consumers can override it
	if _, err := lexicon.Hears("help", func(bot *services.Bot, trigger *models.Trigger) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := bot.SayMarkdown(ctx, lexicon.Help()); err != nil {
			log.Printf("⚠️ Failed to send help text to room %s: %v", bot.Room().ID, err)
		}
	}, "**help** - list registered commands", 100); err != nil {
		log.Fatalf("❌ Failed to register help command: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := dispatcher.Start(startupCtx); err != nil {
		cancel()
		log.Fatalf("❌ Failed to start dispatcher: %v", err)
	}
	cancel()

	sweeper := services.NewSweeper(client, registry, spawner, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("❌ Failed to start registry sweep: %v", err)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "roomframe v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4 * 1024 * 1024, // notification payloads are small
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("roomframe")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Routes
	webhookHandler := handlers.NewNotificationWebhookHandler(dispatcher, cfg.WebhookSecret)
	app.Post("/api/webhooks/platform", webhookHandler.HandleNotification)

	socketHandler := handlers.NewEventSocketHandler(dispatcher)
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(socketHandler.Handle))

	app.Get("/health", func(c *fiber.Ctx) error {
		active, inactive := registry.Counts()
		return c.JSON(fiber.Map{
			"status":   "ok",
			"active":   active,
			"inactive": inactive,
		})
	})

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		sweeper.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		dispatcher.Stop(shutdownCtx)
		cancel()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// newStore selects the storage adapter from configuration
func newStore(cfg *config.Config) (storage.Store, func()) {
	switch cfg.StorageBackend {
	case "redis":
		store, err := storage.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Redis storage connected")
		return store, func() { store.Close() }
	case "mongo":
		if cfg.MongoURI == "" {
			log.Fatal("❌ MONGODB_URI is required for the mongo storage backend")
		}
		store, err := storage.NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		log.Println("✅ MongoDB storage connected")
		return store, func() { store.Close(context.Background()) }
	default:
		log.Println("✅ In-memory storage selected")
		return storage.NewMemoryStore(), func() {}
	}
}
