package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"socialins-backend/internal/config"
	"socialins-backend/internal/cron"
	"socialins-backend/internal/database"
	"socialins-backend/internal/handlers"
	"socialins-backend/internal/middleware"
	"socialins-backend/internal/storage"
)

func main() {
	// 1. Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Connect to PostgreSQL
	db := database.New(&cfg.DB)
	defer db.Close()

	// 3. Initialize workbook storage: R2 when configured, local disk otherwise
	var fileStore storage.Store
	if cfg.Upload.R2AccountID != "" {
		fileStore, err = storage.NewR2Store(
			cfg.Upload.R2AccountID, cfg.Upload.R2AccessKey, cfg.Upload.R2SecretKey,
			cfg.Upload.R2Bucket, cfg.Upload.R2PublicURL,
		)
		if err != nil {
			log.Fatalf("Failed to initialize R2 storage: %v", err)
		}
		log.Println("Using R2 object storage for uploaded workbooks")
	} else {
		fileStore, err = storage.NewLocalStore(cfg.Upload.Dir, cfg.Upload.BaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
		log.Printf("Using local storage for uploaded workbooks: %s", cfg.Upload.Dir)
	}

	// 4. Set up router with global middleware
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 5. Initialize handlers with their dependencies
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	tenantHandler := handlers.NewTenantHandler(db)
	periodHandler := handlers.NewPeriodHandler(db, fileStore)
	fileHandler := handlers.NewFileHandler(db, fileStore)
	processHandler := handlers.NewProcessHandler(db)
	employeeHandler := handlers.NewEmployeeHandler(db)
	userMgmtHandler := handlers.NewUserManagementHandler(db)
	activityHandler := handlers.NewActivityHandler(db)
	notificationHandler := handlers.NewNotificationHandler(db)

	// Start background cron jobs
	cron.StartNotifier(db)

	// 6. Public routes (no authentication required)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Social Insurance Reconciliation API"))
	})
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(db.Health())
	})

	// Auth routes — public, rate-limited per IP
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rate.Every(time.Second), 5))
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	// Serve raw workbooks (local storage only — R2 serves its own URLs)
	if cfg.Upload.R2AccountID == "" {
		r.Handle("/api/files/*",
			http.StripPrefix("/api/files/", http.FileServer(http.Dir(cfg.Upload.Dir))))
	}

	// 7. Protected routes (require valid JWT; tenant scope injected)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.InjectTenantScope(db.GetPool()))

		// Current user profile
		r.Get("/api/auth/me", authHandler.GetMe)

		// Notifications (user-scoped, all authenticated users)
		r.Get("/api/notifications", notificationHandler.List)
		r.Get("/api/notifications/count", notificationHandler.UnreadCount)
		r.Put("/api/notifications/read-all", notificationHandler.MarkAllRead)
		r.Put("/api/notifications/{id}/read", notificationHandler.MarkRead)

		// Tenants — list is read-only for all roles
		r.Get("/api/tenants", tenantHandler.List)

		// Periods and their computed results — read-only for viewers
		r.Get("/api/periods", periodHandler.List)
		r.Route("/api/periods/{id}", func(r chi.Router) {
			r.Get("/files", fileHandler.List)
			r.Get("/completeness", fileHandler.Completeness)
			r.Get("/summary", processHandler.GetSummary)
			r.Get("/charges/{part}", processHandler.GetCharges)
			r.Get("/export/summary", processHandler.ExportSummary)
			r.Get("/export/charges/{part}", processHandler.ExportCharges)
			r.Get("/export/charges/{part}/csv", processHandler.ExportChargesCSV)
		})

		// Roster — read-only endpoints accessible to viewers
		r.Get("/api/employees", employeeHandler.List)
		r.Get("/api/employees/departments", employeeHandler.Departments)
		r.Get("/api/employees/export", employeeHandler.Export)

		// Activity log (read-only)
		r.Get("/api/activity", activityHandler.List)

		// Write operations restricted to operator role and above
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireMinRole("operator"))

			// Period lifecycle
			r.Post("/api/periods", periodHandler.Create)
			r.Route("/api/periods/{id}", func(r chi.Router) {
				r.Delete("/", periodHandler.Delete)
				r.Post("/reset", periodHandler.Reset)
				r.Post("/complete", periodHandler.Complete)
				r.Post("/archive", periodHandler.Archive)

				// File intake
				r.Post("/files", fileHandler.UploadNormal)
				r.Delete("/files", fileHandler.ClearNormal)
				r.Post("/adjustments", fileHandler.UploadAdjustments)
				r.Delete("/adjustments", fileHandler.ClearAdjustments)

				// Processing
				r.Post("/process", processHandler.Process)
				r.Post("/process-adjustments", processHandler.ProcessAdjustments)
			})

			// Roster write operations
			r.Post("/api/employees", employeeHandler.Create)
			r.Put("/api/employees/{id}", employeeHandler.Update)
			r.Delete("/api/employees/{id}", employeeHandler.Delete)
		})

		// Admin-only operations
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireMinRole("admin"))

			// Tenant write operations
			r.Post("/api/tenants", tenantHandler.Create)
			r.Put("/api/tenants/{id}", tenantHandler.Update)
			r.Delete("/api/tenants/{id}", tenantHandler.Delete)

			// User management
			r.Get("/api/users", userMgmtHandler.List)
			r.Patch("/api/users/{id}/role", userMgmtHandler.UpdateRole)
			r.Delete("/api/users/{id}", userMgmtHandler.Delete)
			r.Get("/api/users/{id}/tenants", userMgmtHandler.GetUserTenants)
			r.Put("/api/users/{id}/tenants", userMgmtHandler.SetUserTenants)
		})
	})

	// 8. Start server with graceful shutdown
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server started on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-done
	log.Println("Server stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited properly")
}
