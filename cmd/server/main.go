// Package main はゲートウェイサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ai-gateway/config"
	"ai-gateway/internal/handler"
	"ai-gateway/internal/infra"
	"ai-gateway/internal/proxy"
	"ai-gateway/internal/repository"
	"ai-gateway/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, logLevel)

	if cfg.MasterKey == "" {
		slog.Warn("MASTER_KEY is not set; key management API is inaccessible")
	}

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// 起動時にマイグレーションを適用
	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "./migrations"
	}
	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		slog.Error("failed to resolve migrations directory", "error", err)
		os.Exit(1)
	}
	migrationRepo := repository.NewMigrationRepository(db)
	migrationService := usecase.NewMigrationService(migrationRepo, db, absPath)
	appliedCount, err := migrationService.ApplyMigrations(ctx)
	if err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	if appliedCount > 0 {
		slog.Info("applied migrations", "count", appliedCount)
	}

	// DI
	repo := repository.NewKeyRepository(db)
	hasher := infra.NewSaltedHasher()
	keyService := usecase.NewKeyService(repo, hasher)
	auth := usecase.NewAuthenticator(cfg.MasterKey, repo, hasher)
	forwarder := proxy.NewForwarder(cfg)
	registry := proxy.NewRegistryClient(cfg.SpeechBaseURL)
	keyHandler := handler.NewKeyHandler(keyService)
	proxyHandler := handler.NewProxyHandler(forwarder, registry, cfg)
	router := handler.NewRouter(keyHandler, proxyHandler, auth)

	// サーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: otelhttp.NewHandler(router, "gateway"),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"ollama_base_url", cfg.OllamaBaseURL,
		"speech_base_url", cfg.SpeechBaseURL,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
