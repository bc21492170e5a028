package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/coachcal/internal/availability"
	"github.com/hitoshi/coachcal/internal/calendar"
	"github.com/hitoshi/coachcal/internal/config"
	"github.com/hitoshi/coachcal/internal/database"
	"github.com/hitoshi/coachcal/internal/handler"
	"github.com/hitoshi/coachcal/internal/logger"
	"github.com/hitoshi/coachcal/internal/metrics"
	"github.com/hitoshi/coachcal/internal/middleware"
	"github.com/hitoshi/coachcal/internal/model"
	"github.com/hitoshi/coachcal/internal/repository"
	"github.com/hitoshi/coachcal/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("default_timezone", cfg.DefaultTimezone),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	router, rateLimiter := newHandler(cfg, db, slog.Default(), prometheus.NewRegistry())
	defer rateLimiter.Stop()

	// 3. HTTPサーバーの起動
	// グループ検索は外部カレンダーへのファンアウトを伴うため、書き込みタイムアウトは取得上限より長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newHandler はリポジトリ・カレンダークライアント・エンジン・ルーターを組み立てる。
// 返却するRateLimiterはクリーンアップ用goroutineを持つため、呼び出し側でStopすること。
func newHandler(cfg *config.Config, db *sql.DB, log *slog.Logger, registry *prometheus.Registry) (http.Handler, *middleware.RateLimiter) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)
	hoursRepo := repository.NewPostgresWorkingHoursRepo(db)
	connRepo := repository.NewPostgresCalendarConnectionRepo(db)
	manualRepo := repository.NewPostgresManualSlotRepo(db)

	// 2. メトリクス
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 外部カレンダークライアントの初期化
	// プロバイダー呼び出しは全クライアントで1つのレート枠を共有する
	providerLimiter := rate.NewLimiter(rate.Limit(cfg.ProviderRatePerSec), cfg.ProviderBurst)
	freeBusy := calendar.NewFreeBusyClient(
		&http.Client{Timeout: cfg.ProviderTimeout},
		providerLimiter, cfg.FreeBusyEndpoint, log,
	)
	ics := calendar.NewICSClient(
		security.NewFeedGuard(), providerLimiter, log,
		cfg.ProviderTimeout, cfg.ICSFetchMaxSize,
	)

	// 4. エンジンの初期化
	resolver := availability.NewWorkingHoursResolver(hoursRepo, model.WorkingHoursConfig{
		StartHour: cfg.DefaultStartHour,
		EndHour:   cfg.DefaultEndHour,
		WorkDays:  cfg.DefaultWorkDays,
		Timezone:  cfg.DefaultTimezone,
	}, log)

	service := availability.NewService(availability.Dependencies{
		Users:        userRepo,
		Groups:       groupRepo,
		WorkingHours: resolver,
		Connections:  connRepo,
		ManualSlots:  manualRepo,
		Calendar:     calendar.NewRouter(freeBusy, ics),
		Recorder:     collector,
	}, availability.Options{
		DefaultTimezone: cfg.DefaultTimezone,
		LookaheadDays:   cfg.LookaheadDays,
		MaxRangeDays:    cfg.MaxRangeDays,
		MaxConcurrent:   cfg.ProviderMaxConcurrent,
		ProviderTimeout: cfg.ProviderTimeout,
	}, log)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:              log,
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimiter:         rateLimiter,
		StatusRecorder:      collector,
		HealthChecker:       db,
		MetricsHandler:      metrics.Handler(registry),
		AvailabilityService: service,
	})

	return router, rateLimiter
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
