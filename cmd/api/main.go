package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xavierca1/immigration-crm/internal/config"
	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/auth"
	"github.com/xavierca1/immigration-crm/internal/infra/database"
	"github.com/xavierca1/immigration-crm/internal/infra/database/memory"
	"github.com/xavierca1/immigration-crm/internal/infra/http/handlers"
	crmmiddleware "github.com/xavierca1/immigration-crm/internal/infra/http/middleware"
	"github.com/xavierca1/immigration-crm/internal/infra/integration/casedesk"
	"github.com/xavierca1/immigration-crm/internal/infra/mail"
	"github.com/xavierca1/immigration-crm/internal/infra/queue"
	"github.com/xavierca1/immigration-crm/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	var (
		db       *sql.DB
		repo     entity.ProspectRepositoryInterface
		invoices usecase.InvoiceNumberer
	)
	if cfg.DatabaseURL != "" {
		db, err = database.NewDBConnection(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("❌ migration failed: %v", err)
		}
		repo = database.NewProspectRepository(db)
		invoices = database.NewInvoiceSequence(db)
	} else {
		log.Println("⚠️ DATABASE_URL not set, using the in-memory store")
		repo = memory.NewProspectRepository()
		invoices = memory.NewInvoiceNumberer()
	}

	// 2. Activity sink and notification worker
	var (
		publisher usecase.ActivityPublisher = queue.LogPublisher{}
		broker    handlers.BrokerStatus
	)
	if cfg.RabbitMQURL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer rabbitMQ.Close()
		broker = rabbitMQ
		publisher = queue.NewProducer(rabbitMQ.Ch)

		if cfg.MailEnabled() {
			consumerCh, err := rabbitMQ.Channel()
			if err != nil {
				log.Fatalf("❌ %v", err)
			}
			sender := mail.NewEmailSender(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPass, cfg.MailFrom)
			worker := queue.NewWorker(consumerCh, sender)
			go func() {
				if err := worker.Start(ctx, queue.QueueName); err != nil {
					log.Printf("❌ [WORKER] stopped: %v", err)
				}
			}()
		} else {
			log.Println("⚠️ MAIL_HOST not set, notification worker disabled")
		}
	} else {
		log.Println("⚠️ RABBITMQ_URL not set, activity events are only logged")
	}

	// 3. Client/Case service
	caseDesk := casedesk.NewClient(cfg.CaseDeskURL, cfg.CaseDeskAPIKey)
	var caseDeskHealth handlers.Pinger
	if cfg.CaseDeskURL != "" {
		caseDeskHealth = caseDesk
	} else {
		log.Println("⚠️ CASEDESK_URL not set, conversions will fail until it is configured")
	}

	// 4. UseCases
	meteredPublisher := instrumentedPublisher{next: publisher}
	lifecycleUC := usecase.NewLifecycleUseCase(
		repo,
		invoices,
		instrumentedProvisioner{next: caseDesk},
		meteredPublisher,
		cfg.ConsultationFee,
	)
	listUC := usecase.NewListProspectsUseCase(repo)
	submitUC := usecase.NewSubmitContactUseCase(repo, meteredPublisher)

	// 5. Handlers
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer)
	limiter := handlers.NewRateLimiter(cfg.ContactRateLimit, time.Minute)
	defer limiter.Stop()
	contactHandler := handlers.NewContactHandler(submitUC, limiter)
	prospectHandler := handlers.NewProspectHandler(lifecycleUC, listUC)
	healthHandler := handlers.NewHealthHandler(db, broker, caseDeskHealth)

	// 6. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(crmmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-Match", "Idempotency-Key"},
		ExposedHeaders: []string{"ETag"},
	}))
	r.NotFound(handlers.NotFound)

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())
	handlers.Routes(r, contactHandler, prospectHandler, tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("🔥 Immigration CRM API listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("❌ %v", err)
	}
	log.Println("👋 Server stopped")
}
