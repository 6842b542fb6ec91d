// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/config"
	"github.com/pairchat/pairchat/internal/handler"
	"github.com/pairchat/pairchat/internal/middleware"
	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/relay"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
	"github.com/pairchat/pairchat/pkg/tracing"
)

func main() {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "pairchat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Durable store
	var st store.Store
	var pg *store.Postgres
	switch cfg.StoreDriver {
	case "memory":
		st = store.NewMemory()
		log.Warn("using in-memory store, data will not survive a restart")
	default:
		pg, err = store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", zap.Error(err))
			os.Exit(1)
		}
		st = pg
	}
	defer st.Close()

	// Notification channel. With the postgres driver the notification can
	// ride the persist transaction, so Send goes through the atomic path.
	var broker pubsub.Broker
	var atomicStore store.MessageNotifyStore
	switch cfg.PubSubDriver {
	case "memory":
		broker = pubsub.NewMemoryBroker()
	case "nats":
		broker, err = pubsub.ConnectNATS(pubsub.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
	default:
		if pg == nil {
			log.Error("postgres pub/sub requires the postgres store driver")
			os.Exit(1)
		}
		broker = pubsub.NewPostgresBroker(pg.Pool(), log)
		atomicStore = pg
	}
	defer broker.Close()

	// Services
	authSvc := service.NewAuthService(st, cfg.JWTSecret, cfg.JWTExpiration, log)
	userSvc := service.NewUserService(st, log)
	chatCodeSvc := service.NewChatCodeService(st, st, log)
	conversationSvc := service.NewConversationService(st, log)
	messageSvc := service.NewMessageService(st, broker, atomicStore, log)
	gate := relay.NewGate(conversationSvc)

	// Handlers
	healthHandler := handler.NewHealthHandler(st, broker)
	authHandler := handler.NewAuthHandler(authSvc, cfg.JWTExpiration, log)
	userHandler := handler.NewUserHandler(userSvc, log)
	chatCodeHandler := handler.NewChatCodeHandler(chatCodeSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, conversationSvc, log)
	wsHandler := handler.NewWSHandler(gate, messageSvc, broker, log)

	// Router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Auth endpoints (rate limited by IP)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
	})

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.Update)
			r.Put("/me/password", userHandler.UpdatePassword)
			r.Delete("/me", userHandler.Delete)
			r.Get("/{id}", userHandler.Get)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/ws", wsHandler.Serve)

			r.Route("/codes", func(r chi.Router) {
				r.Post("/", chatCodeHandler.Create)
				r.Get("/", chatCodeHandler.List)
				r.Delete("/{code}", chatCodeHandler.Delete)
				r.Post("/redeem", chatCodeHandler.Redeem)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", messageHandler.List)
				r.Patch("/messages/{messageID}", messageHandler.Edit)
				r.Delete("/messages/{messageID}", messageHandler.Delete)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
