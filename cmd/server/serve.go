package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sumire/defects/internal/config"
	"github.com/sumire/defects/internal/handler"
	"github.com/sumire/defects/internal/repository"
	"github.com/sumire/defects/internal/service"
	"github.com/sumire/defects/internal/storage"
)

func migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database connected")

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	logger.Info("file store ready", "type", cfg.Storage.Type)

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	stageRepo := repository.NewStageRepository(db)
	defectRepo := repository.NewDefectRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		JWTSecret:          cfg.JWTSecret,
		AccessTTL:          cfg.JWTExpiresIn,
		RefreshTTL:         cfg.RefreshTTL,
		FrontendURL:        cfg.FrontendURL,
	})
	projectSvc := service.NewProjectService(db, projectRepo, stageRepo, attachmentRepo, reportRepo, files)
	stageSvc := service.NewStageService(db, stageRepo, projectRepo)
	defectSvc := service.NewDefectService(service.DefectDeps{
		Tx:          db,
		Defects:     defectRepo,
		Projects:    projectRepo,
		Stages:      stageRepo,
		Users:       userRepo,
		Comments:    commentRepo,
		Attachments: attachmentRepo,
		History:     historyRepo,
		Recorder:    service.NewChangeRecorder(historyRepo),
		Files:       files,
	})
	attachmentSvc := service.NewAttachmentService(attachmentRepo, defectRepo, files, cfg.UploadMaxBytes)
	reportSvc := service.NewReportService(reportRepo, nil)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(cfg.Production())

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderXRequestID, echo.HeaderContentDisposition},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handler.Register(e, handler.Routes{
		Auth:        handler.NewAuthHandler(authSvc, cfg.Production()),
		Projects:    handler.NewProjectHandler(projectSvc, stageSvc),
		Stages:      handler.NewStageHandler(stageSvc),
		Defects:     handler.NewDefectHandler(defectSvc),
		Attachments: handler.NewAttachmentHandler(attachmentSvc),
		Reports:     handler.NewReportHandler(reportSvc),
		Verifier:    authSvc,
		AuthLimiter: middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.AuthRateLimit),
				Burst:     int(cfg.AuthRateLimit) + 1,
				ExpiresIn: 3 * time.Minute,
			}),
		}),
		// Room for the multipart envelope around the file itself.
		UploadLimit: middleware.BodyLimit(fmt.Sprintf("%dK", cfg.UploadMaxBytes/1024+64)),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
