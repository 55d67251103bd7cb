package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/trendstore/commerce-core/internal/auth"
	"github.com/trendstore/commerce-core/internal/cart"
	"github.com/trendstore/commerce-core/internal/catalog"
	"github.com/trendstore/commerce-core/internal/config"
	"github.com/trendstore/commerce-core/internal/customer"
	"github.com/trendstore/commerce-core/internal/inventory"
	"github.com/trendstore/commerce-core/internal/messaging"
	"github.com/trendstore/commerce-core/internal/orders"
	"github.com/trendstore/commerce-core/internal/telemetry"
	"github.com/trendstore/commerce-core/internal/tenant"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(true)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "commerce", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("commerce", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var createdEvents, statusEvents *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		createdEvents = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderCreated)
		defer func() { _ = createdEvents.Close() }()
		statusEvents = messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderStatusChanged)
		defer func() { _ = statusEvents.Close() }()
	}

	tenants := tenant.NewRepository(db, cfg.DefaultTenant)
	catalogRepo := catalog.NewRepository(db)
	ledger := inventory.NewLedger(db)
	customerRepo := customer.NewRepository(db)
	cartRepo := cart.NewRepository(db, catalogRepo, customerRepo)
	workflow := orders.NewWorkflow(db, ledger, catalogRepo, cartRepo, customerRepo)

	catalogHandler := catalog.NewHandler(catalogRepo, tenants, logger)
	cartHandler := cart.NewHandler(cartRepo, tenants, logger)
	orderHandler := orders.NewHandler(workflow, tenants, createdEvents, statusEvents, logger)
	stockHandler := inventory.NewHandler(ledger, tenants, logger)
	customerHandler := customer.NewHandler(customerRepo, tenants, logger)

	admin := auth.NewMiddleware([]byte(cfg.AdminJWTSecret), cfg.DefaultTenant, logger)

	mux := http.NewServeMux()

	// Storefront.
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /stock/{variantId}", telemetry.WithHTTPRoute(stockHandler.HandleGetStock))
	mux.HandleFunc("POST /carts", telemetry.WithHTTPRoute(cartHandler.HandleCreate))
	mux.HandleFunc("GET /carts/{id}", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("POST /carts/{id}/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("PATCH /carts/{id}/items/{variantId}", telemetry.WithHTTPRoute(cartHandler.HandleSetQuantity))
	mux.HandleFunc("DELETE /carts/{id}/items/{variantId}", telemetry.WithHTTPRoute(cartHandler.HandleRemoveItem))
	mux.HandleFunc("POST /carts/{id}/checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("POST /customers", telemetry.WithHTTPRoute(customerHandler.HandleCreate))

	// Admin console.
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(admin.Require(orderHandler.HandleList)))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(admin.Require(orderHandler.HandleTransition)))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(admin.Require(catalogHandler.HandleCreate)))
	mux.HandleFunc("PATCH /products/{id}", telemetry.WithHTTPRoute(admin.Require(catalogHandler.HandleUpdate)))
	mux.HandleFunc("DELETE /products/{id}", telemetry.WithHTTPRoute(admin.Require(catalogHandler.HandleDelete)))
	mux.HandleFunc("PUT /stock/{variantId}", telemetry.WithHTTPRoute(admin.Require(stockHandler.HandleAdjustStock)))
	mux.HandleFunc("GET /customers", telemetry.WithHTTPRoute(admin.Require(customerHandler.HandleList)))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "commerce",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  cfg.ShutdownTimeout,
		WriteTimeout: cfg.ShutdownTimeout,
	}

	go func() {
		logger.Info("starting commerce service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
