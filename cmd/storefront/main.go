package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/omarselim/souq-storefront/internal/cart"
	"github.com/omarselim/souq-storefront/internal/catalog"
	"github.com/omarselim/souq-storefront/internal/checkout"
	"github.com/omarselim/souq-storefront/internal/coupon"
	"github.com/omarselim/souq-storefront/internal/customer"
	"github.com/omarselim/souq-storefront/internal/favorites"
	"github.com/omarselim/souq-storefront/internal/identity"
	"github.com/omarselim/souq-storefront/internal/ledger"
	"github.com/omarselim/souq-storefront/internal/media"
	"github.com/omarselim/souq-storefront/internal/messaging"
	"github.com/omarselim/souq-storefront/internal/orders"
	"github.com/omarselim/souq-storefront/internal/telemetry"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Warn("failed to start runtime instrumentation", "error", err)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	dsn, err := telemetry.WithSearchPath(postgresURL, "storefront")
	if err != nil {
		logger.Error("invalid POSTGRES_URL", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", dsn)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, degraded paths will engage", "error", err)
	}

	var producer checkout.Publisher = nopPublisher{}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		p := messaging.NewProducer(strings.Split(kafkaBrokers, ","), "order.created")
		defer func() { _ = p.Close() }()
		producer = p
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	mediaServiceURL := os.Getenv("MEDIA_SERVICE_URL")
	if mediaServiceURL == "" {
		mediaServiceURL = "http://localhost:8085"
	}

	catalogRepo := catalog.NewRepository(db)

	ledgerStore := ledger.NewRedisStore(redisClient)
	couponRepo := coupon.NewRepository(db)
	couponMirror := coupon.NewMirror(redisClient)
	validator := coupon.NewValidator(couponRepo, couponMirror, ledgerStore, logger)

	cartService := cart.NewService(cart.NewRepository(db), cart.NewCacheStore(redisClient), catalogRepo, logger)
	customerRepo := customer.NewRepository(db, redisClient)
	favoritesService := favorites.NewService(favorites.NewRepository(db), favorites.NewFallbackStore(redisClient), logger)
	ordersRepo := orders.NewRepository(db)

	checkoutService := checkout.NewService(
		checkout.NewRedisSessionStore(redisClient),
		cartService,
		catalogRepo,
		validator,
		ledgerStore,
		ordersRepo,
		checkout.NewNumberAllocator(db),
		producer,
		logger,
	)

	catalogHandler := catalog.NewHandler(catalogRepo, logger)
	cartHandler := cart.NewHandler(cartService, validator, couponMirror, logger)
	customerHandler := customer.NewHandler(customerRepo, logger)
	favoritesHandler := favorites.NewHandler(favoritesService, logger)
	checkoutHandler := checkout.NewHandler(checkoutService, logger)
	ordersHandler := orders.NewHandler(ordersRepo, media.NewHTTPUploader(mediaServiceURL), logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleListProducts))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGetProduct))
	mux.HandleFunc("GET /categories", telemetry.WithHTTPRoute(catalogHandler.HandleListCategories))

	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("PATCH /cart/items/{productId}", telemetry.WithHTTPRoute(cartHandler.HandleAdjustQuantity))
	mux.HandleFunc("DELETE /cart/items/{productId}", telemetry.WithHTTPRoute(cartHandler.HandleRemoveItem))
	mux.HandleFunc("POST /cart/coupon", telemetry.WithHTTPRoute(cartHandler.HandleApplyCoupon))

	mux.HandleFunc("GET /customer/shipping", telemetry.WithHTTPRoute(customerHandler.HandleGetShipping))
	mux.HandleFunc("PUT /customer/shipping", telemetry.WithHTTPRoute(customerHandler.HandleSaveShipping))

	mux.HandleFunc("GET /favorites", telemetry.WithHTTPRoute(favoritesHandler.HandleList))
	mux.HandleFunc("PUT /favorites/{productId}", telemetry.WithHTTPRoute(favoritesHandler.HandleAdd))
	mux.HandleFunc("DELETE /favorites/{productId}", telemetry.WithHTTPRoute(favoritesHandler.HandleRemove))

	mux.HandleFunc("GET /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleGet))
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleBegin))
	mux.HandleFunc("POST /checkout/shipping", telemetry.WithHTTPRoute(checkoutHandler.HandleSubmitShipping))
	mux.HandleFunc("POST /checkout/confirm", telemetry.WithHTTPRoute(checkoutHandler.HandleConfirm))
	mux.HandleFunc("DELETE /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleAbandon))

	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(ordersHandler.HandleCancel))
	mux.HandleFunc("POST /orders/{id}/payment-proof", telemetry.WithHTTPRoute(ordersHandler.HandleUploadProof))

	mux.Handle("GET /metrics", metricsHandler)

	resolver := identity.NewRedisResolver(redisClient)
	handler := identity.Middleware(resolver, logger)(mux)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(handler, "storefront",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
