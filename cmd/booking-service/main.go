package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eursukkul/court-booking/config"
	"github.com/Eursukkul/court-booking/internal/availability"
	"github.com/Eursukkul/court-booking/internal/consumer"
	"github.com/Eursukkul/court-booking/internal/handler"
	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/middleware"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/payment"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/service"
	"github.com/Eursukkul/court-booking/pkg/database"
	"github.com/Eursukkul/court-booking/pkg/logging"
	"github.com/Eursukkul/court-booking/pkg/obs"
	"github.com/Eursukkul/court-booking/pkg/rabbitmq"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.Environment)
		if err != nil {
			log.WithError(err).Fatal("failed to init tracing")
		}
		defer shutdown(context.Background())
	}

	db, err := database.NewPostgresDB(cfg.DSN(),
		&models.Facility{}, &models.FacilityDay{}, &models.Reservation{}, &models.RefundTask{})
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}

	// Notifications: bookings exchange, plus the staff chat when configured.
	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, rabbitmq.BookingsExchange, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	sinks := []notify.Sink{notify.NewRabbitSink(publisher)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		bot, err := notify.NewTelegramBot(cfg.TelegramToken)
		if err != nil {
			log.WithError(err).Warn("telegram disabled")
		} else {
			sinks = append(sinks, notify.NewTelegramSink(bot, cfg.TelegramChatID,
				notify.BookingCancelled, notify.RefundFailed))
		}
	}
	sink := notify.NewAsync(notify.NewFanout(log, cfg.NotifyTimeout, sinks...), cfg.NotifyBuffer, log)

	// Facility sync from facility-service.
	mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, rabbitmq.FacilitiesExchange,
		cfg.ServiceName+".facilities", "facility.*", log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer mqConsumer.Close()

	msgs, err := mqConsumer.Consume()
	if err != nil {
		log.WithError(err).Fatal("failed to start consuming")
	}

	// Repositories
	facilityRepo := repository.NewFacilityRepository(db)
	refundRepo := repository.NewRefundTaskRepository(db)
	reservations := repository.NewReservationStore(db)

	consumer.NewFacilityConsumer(facilityRepo, log).Start(ctx, msgs)

	var gateway payment.Gateway = payment.NewSandboxGateway()
	if cfg.OmiseSecretKey != "" {
		client, err := payment.NewOmiseClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			log.WithError(err).Fatal("failed to create omise client")
		}
		gateway = payment.NewOmiseGateway(client, log)
	} else {
		log.Warn("no payment keys configured, using sandbox gateway")
	}

	// Services
	loc := cfg.Location()
	clock := service.SystemClock()
	hours := service.NewFacilityHoursProvider(facilityRepo)
	l := ledger.New(reservations, log)
	paymentPolicy := service.RetryPolicy{
		MaxAttempts: cfg.PaymentMaxAttempts,
		Backoff:     cfg.PaymentBackoff,
		Multiplier:  2,
		MaxBackoff:  cfg.PaymentMaxBackoff,
	}
	reservePolicy := service.RetryPolicy{MaxAttempts: cfg.ReserveMaxAttempts, Backoff: 20 * time.Millisecond, Multiplier: 2}

	bookingSvc := service.NewBookingService(l, hours, gateway, refundRepo, sink, clock,
		service.BookingOptions{ReservePolicy: reservePolicy, PaymentPolicy: paymentPolicy, Location: loc}, log)
	cancellationSvc := service.NewCancellationService(l, gateway, refundRepo, sink, clock,
		service.CancellationOptions{Cutoff: cfg.CancelCutoff, Location: loc, RefundPolicy: paymentPolicy}, log)
	availabilitySvc := service.NewAvailabilityService(
		availability.NewIndex(availability.Config{
			LockTTL:              cfg.LockTTL,
			FillingFastThreshold: cfg.FillingFastThreshold,
			Location:             loc,
		}), l, hours, clock)

	reconciler := service.NewReconciler(l, refundRepo, gateway, sink, clock, cfg.LockTTL, log)
	go reconciler.Run(ctx, cfg.SweepInterval)

	// Rate limiting on the book endpoint; disabled when redis is unreachable.
	var limiter redis.Scripter
	if cfg.RateLimitEnabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, rate limiting disabled")
		} else {
			limiter = rdb
			defer rdb.Close()
		}
		cancel()
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(requestLogger(log))
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": cfg.ServiceName})
	})

	api := e.Group("/api/v1", middleware.Identity(cfg.JWTSecret))
	handler.NewBookingHandler(bookingSvc, cancellationSvc, availabilitySvc).RegisterRoutes(api,
		middleware.RateLimit(middleware.RateLimitConfig{
			Enabled:        limiter != nil,
			Prefix:         "rl:book",
			Capacity:       cfg.RateLimitCapacity,
			RefillTokens:   cfg.RateLimitRefill,
			RefillInterval: cfg.RateLimitInterval,
			TTL:            cfg.RateLimitTTL,
		}, limiter, log))

	go func() {
		log.Infof("%s starting on :%s", cfg.ServiceName, cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := sink.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("pending notifications dropped")
	}
}

func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("request")
			return nil
		},
	})
}
