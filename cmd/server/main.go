package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"studydesk/internal/app"
	"studydesk/internal/config"
	"studydesk/internal/server"
	"studydesk/internal/util"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	if sessionTTL == 0 {
		sessionTTL = 30 * 24 * time.Hour
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		JWTSecret:      cfg.JWTSecret,
		SessionTTL:     sessionTTL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		AIServiceURL:   cfg.AIServiceURL,
		YouTubeAPIKey:  cfg.YouTubeAPIKey,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		CORSOrigin:               cfg.CORSOrigin,
		MaxUploadBytes:           int64(cfg.MaxUploadMB) * 1024 * 1024,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset so long-lived chat streams are not
		// cut off mid-reply.
		IdleTimeout: 60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
