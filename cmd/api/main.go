package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/clipdigest/backend/internal/database"
	"github.com/clipdigest/backend/internal/handlers"
	"github.com/clipdigest/backend/internal/middleware"
	"github.com/clipdigest/backend/internal/models"
	"github.com/clipdigest/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed admin user if not exists
	seedAdminUser()

	// Wire Stripe
	handlers.InitStripe(cfg)

	// Services
	usageService := services.NewUsageService(database.DB)
	planSyncService := services.NewPlanSyncService(database.DB, cfg)
	summarizerClient := services.NewSummarizerClient(cfg)
	progressStore := services.NewProgressStore(database.Redis)

	// Nightly database backup with FTP offsite copy
	backupService := services.NewBackupService(cfg, 24*time.Hour)
	backupService.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ClipDigest API v1.0",
		ServerHeader: "ClipDigest",
		BodyLimit:    1 * 1024 * 1024, // 1MB, nothing here uploads files
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	summaryHandler := handlers.NewSummaryHandler(usageService, summarizerClient, progressStore)
	usageHandler := handlers.NewUsageHandler(usageService)
	billingHandler := handlers.NewBillingHandler(cfg, planSyncService)
	userHandler := handlers.NewUserHandler(planSyncService)
	auditHandler := handlers.NewAuditHandler()
	healthHandler := handlers.NewHealthHandler(summarizerClient)

	// Health checks
	app.Get("/health", healthHandler.Live)
	app.Get("/health/ready", healthHandler.Ready)

	// API routes
	api := app.Group("/api")

	// Apply rate limiting to API routes (100 requests per minute by default)
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	// Public routes
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Stripe webhook: authenticated by signature, not by JWT
	api.Post("/billing/webhook", billingHandler.Webhook)

	// Summary creation and usage are open to fingerprinted anonymous
	// callers, so they sit behind OptionalAuth instead of AuthRequired
	anon := api.Group("", middleware.OptionalAuth(cfg))
	anon.Post("/summaries", summaryHandler.Create)
	anon.Get("/usage", usageHandler.Get)
	anon.Get("/summaries/progress/:taskID", summaryHandler.Progress)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg), middleware.AuditLogger())

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/refresh", authHandler.RefreshToken)
	protected.Put("/auth/password", authHandler.ChangePassword)

	// 2FA routes
	protected.Get("/auth/2fa/status", twoFAHandler.Status)
	protected.Post("/auth/2fa/setup", twoFAHandler.Setup)
	protected.Post("/auth/2fa/verify", twoFAHandler.Verify)
	protected.Post("/auth/2fa/disable", twoFAHandler.Disable)

	// Summary routes
	summaries := protected.Group("/summaries")
	summaries.Get("/", summaryHandler.List)
	summaries.Get("/:id", summaryHandler.Get)
	summaries.Post("/:id/archive", summaryHandler.Archive)
	summaries.Post("/:id/restore", summaryHandler.Restore)
	summaries.Delete("/:id", summaryHandler.Delete)

	// Billing routes
	billing := protected.Group("/billing")
	billing.Get("/status", billingHandler.Status)
	billing.Post("/checkout", billingHandler.CreateCheckoutSession)
	billing.Post("/portal", billingHandler.CreatePortalSession)

	// User management routes (Admin only)
	users := protected.Group("/users", middleware.AdminOnly())
	users.Get("/", userHandler.List)
	users.Get("/:id", userHandler.Get)
	users.Put("/:id", userHandler.Update)
	users.Post("/:id/deactivate", userHandler.Deactivate)

	// Audit log routes (Admin only)
	audit := protected.Group("/audit", middleware.AdminOnly())
	audit.Get("/", auditHandler.List)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		backupService.Stop()
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting ClipDigest API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)

	if count == 0 {
		log.Println("Creating default admin user...")

		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

		admin := models.User{
			UUID:     uuid.New().String(),
			Username: "admin",
			Password: string(hashedPassword),
			Email:    "admin@clipdigest.local",
			FullName: "System Administrator",
			Role:     models.RoleAdmin,
			Plan:     models.PlanEnterprise,
			IsActive: true,
		}

		if err := database.DB.Create(&admin).Error; err != nil {
			log.Printf("Failed to create admin user: %v", err)
		} else {
			log.Println("Admin user created successfully (email: admin@clipdigest.local, password: admin123)")
		}
	}
}
