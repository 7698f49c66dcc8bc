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

	"github.com/glowdesk/backend/docs"
	"github.com/glowdesk/backend/internal/config"
	"github.com/glowdesk/backend/internal/database"
	"github.com/glowdesk/backend/internal/gateway"
	"github.com/glowdesk/backend/internal/handlers"
	mW "github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/schema"
	"github.com/glowdesk/backend/internal/services"
)

// @title GlowDesk POS Backend API
// @version 1.0
// @description API for salon and gym point-of-sale operations
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("billing.tax_bps", "BILLING_TAX_BPS")
	viper.BindEnv("receipt.base_url", "RECEIPT_BASE_URL")
	viper.BindEnv("license.secret", "LICENSE_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "GlowDesk POS Backend API"
	docs.SwaggerInfo.Description = "API for salon and gym point-of-sale operations"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	reflector := schema.NewReflector(db, viper.GetString("database.name"), 5*time.Minute)
	store := schema.NewStore(db, reflector)

	creditsConfig := config.LoadCreditsConfig()
	smsGateway := gateway.NewHTTPSender(
		creditsConfig.GatewayBaseURL,
		creditsConfig.GatewayAPIKey,
		creditsConfig.GatewayTimeout,
	)

	authService := services.NewAuthService(db, redisClient)
	customerService := services.NewCustomerService(db, store)
	employeeService := services.NewEmployeeService(db, store)
	inventoryService := services.NewInventoryService(db, store)
	appointmentService := services.NewAppointmentService(db)
	invoiceService := services.NewInvoiceService(db)
	creditsService := services.NewCreditsService(db, creditsConfig)
	campaignService := services.NewCampaignService(db, creditsService, smsGateway, creditsConfig)
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	reportService := services.NewReportService(db, redisClient)
	recordsService := services.NewRecordsService(store)
	licenseService := services.NewLicenseService()

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
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/license/validate", licenseService.ValidateLicense)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Customer endpoints
			r.Get("/customers", customerService.ListCustomers)
			r.Post("/customers", customerService.CreateCustomer)
			r.Get("/customers/{id}", customerService.GetCustomer)
			r.Put("/customers/{id}", customerService.UpdateCustomer)
			r.Delete("/customers/{id}", customerService.DeleteCustomer)

			// Employee endpoints
			r.Get("/employees", employeeService.ListEmployees)
			r.Post("/employees", employeeService.CreateEmployee)
			r.Get("/employees/{id}", employeeService.GetEmployee)
			r.Put("/employees/{id}", employeeService.UpdateEmployee)
			r.Delete("/employees/{id}", employeeService.DeactivateEmployee)

			// Inventory endpoints
			r.Get("/products", inventoryService.ListProducts)
			r.Post("/products", inventoryService.CreateProduct)
			r.Put("/products/{id}", inventoryService.UpdateProduct)
			r.Post("/products/{id}/adjust", inventoryService.AdjustStock)

			// Appointment endpoints
			r.Get("/appointments", appointmentService.ListAppointments)
			r.Post("/appointments", appointmentService.CreateAppointment)
			r.Get("/appointments/{id}", appointmentService.GetAppointment)
			r.Put("/appointments/{id}/status", appointmentService.UpdateStatus)

			// Invoice endpoints
			r.Get("/invoices", invoiceService.ListInvoices)
			r.Post("/invoices", invoiceService.CreateInvoice)
			r.Get("/invoices/{id}", invoiceService.GetInvoice)
			r.Get("/invoices/{id}/receipt-qr", invoiceService.ReceiptQR)

			// Provider credits endpoints
			r.Get("/credits/wallet", creditsService.GetWallet)
			r.Post("/credits/topup", creditsService.Topup)
			r.Post("/credits/adjust", creditsService.Adjust)
			r.Get("/credits/ledger", creditsService.GetLedger)

			// Campaign endpoints
			r.Get("/campaigns", campaignHandler.ListCampaigns)
			r.Post("/campaigns", campaignHandler.CreateCampaign)
			r.Get("/campaigns/{campaignID}", campaignHandler.GetCampaign)

			// Report endpoints
			r.Get("/reports/sales-summary", reportService.SalesSummary)
			r.Get("/reports/top-services", reportService.TopServices)
			r.Get("/reports/employee-performance", reportService.EmployeePerformance)
			r.Get("/reports/stock-usage", reportService.StockUsage)

			// Generic record endpoints over the reflection layer
			r.Get("/records/{table}", recordsService.ListRecords)
			r.Post("/records/{table}", recordsService.CreateRecord)
			r.Get("/records/{table}/{id}", recordsService.GetRecord)
			r.Put("/records/{table}/{id}", recordsService.UpdateRecord)

			// Licensing, owners only
			r.With(mW.RequireRole("owner")).Post("/license/generate", licenseService.GenerateLicense)
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
