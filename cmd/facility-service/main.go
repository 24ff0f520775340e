package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eursukkul/court-booking/config"
	"github.com/Eursukkul/court-booking/internal/handler"
	"github.com/Eursukkul/court-booking/internal/middleware"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/service"
	"github.com/Eursukkul/court-booking/pkg/database"
	"github.com/Eursukkul/court-booking/pkg/logging"
	"github.com/Eursukkul/court-booking/pkg/rabbitmq"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
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

	db, err := database.NewPostgresDB(cfg.DSN(), &models.Facility{})
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, rabbitmq.FacilitiesExchange, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	repo := repository.NewFacilityRepository(db)
	svc := service.NewFacilityService(repo, publisher, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{"method": v.Method, "uri": v.URI, "status": v.Status}).Info("request")
			return nil
		},
	}))
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "facility-service"})
	})

	api := e.Group("/api/v1/facilities")
	handler.NewFacilityHandler(svc).RegisterRoutes(api)

	go func() {
		log.Infof("facility-service starting on :%s", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
