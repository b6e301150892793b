package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/wikifeed/internal/config"
	"github.com/hitoshi/wikifeed/internal/content"
	"github.com/hitoshi/wikifeed/internal/database"
	"github.com/hitoshi/wikifeed/internal/feed"
	"github.com/hitoshi/wikifeed/internal/handler"
	"github.com/hitoshi/wikifeed/internal/logger"
	"github.com/hitoshi/wikifeed/internal/metrics"
	"github.com/hitoshi/wikifeed/internal/middleware"
	"github.com/hitoshi/wikifeed/internal/reaction"
	"github.com/hitoshi/wikifeed/internal/repository"
	"github.com/hitoshi/wikifeed/internal/security"
	"github.com/hitoshi/wikifeed/internal/wikipedia"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを再構成する
	logger.SetupDefaultWithLevel(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("database", maskDSN(cfg.DSN())),
		slog.String("lang", cfg.WikipediaLang),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、未適用のマイグレーションを適用する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.DSN()
	db, err := database.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db, database.DriverFor(dsn)); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// buildHandler は全依存関係をワイヤリングし、HTTPハンドラーを構築する。
// 返されたRateLimiterはサーバー停止時にStopすること。
func buildHandler(cfg *config.Config, db *sql.DB, log *slog.Logger) (http.Handler, *middleware.RateLimiter, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewSQLUserRepo(db)
	articleRepo := repository.NewSQLArticleRepo(db)
	exposureRepo := repository.NewSQLExposureRepo(db)

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 上流クライアントの初期化
	summaryClient := wikipedia.NewClient(
		&http.Client{Timeout: cfg.SummaryTimeout},
		log, cfg.WikipediaLang, cfg.UserAgent,
	)

	// 4. 本文取得の初期化
	rules, err := content.LoadRules(cfg.BoilerplateRulesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load boilerplate rules: %w", err)
	}
	normalizer, err := content.NewNormalizer(rules, security.NewContentSanitizer())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build normalizer: %w", err)
	}

	var guard security.SSRFGuardService
	contentClient := &http.Client{Timeout: cfg.ContentTimeout}
	if !cfg.AllowPrivateNetworks {
		ssrfGuard := security.NewSSRFGuard()
		guard = ssrfGuard
		contentClient = ssrfGuard.NewSafeClient(cfg.ContentTimeout)
	} else {
		log.Warn("SSRF guard disabled: private network destinations are allowed")
	}
	fetcher := content.NewFetcher(contentClient, guard, normalizer, collector, log, content.FetcherConfig{
		UserAgent: cfg.UserAgent,
		MaxSize:   cfg.ContentMaxSize,
	})

	// 5. ドメインサービスの初期化
	feedService := feed.NewService(summaryClient, userRepo, articleRepo, exposureRepo, collector, log, feed.ServiceConfig{
		Lang:        cfg.WikipediaLang,
		MaxAttempts: cfg.MaxAttempts,
	})
	reactionService := reaction.NewService(userRepo, exposureRepo, collector, log)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitContent),
		log,
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Selector:          feedService,
		Fetcher:           fetcher,
		Reactions:         reactionService,
		Metrics:           metrics.Handler(registry),
	})

	return router, rateLimiter, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, rateLimiter, err := buildHandler(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// writeTimeoutMargin は最長の処理時間に上乗せする書き込み猶予。
const writeTimeoutMargin = 15 * time.Second

// writeTimeout はHTTPサーバーのWriteTimeoutを返す。
// 記事選択はSUMMARY_TIMEOUT×MAX_ATTEMPTSまでかかりうる。その間に配信記録は確定するため、
// 応答の書き込みが先に打ち切られると記事が届かないまま既出扱いになる。
// 本文取得と記事選択のうち長い方に猶予を加えた値とする。
func writeTimeout(cfg *config.Config) time.Duration {
	longest := max(cfg.ContentTimeout, cfg.SummaryTimeout*time.Duration(cfg.MaxAttempts))
	return longest + writeTimeoutMargin
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database", maskDSN(cfg.DSN())),
	)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

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

// maskDSN はPostgreSQL接続URLのパスワードをマスクする。
// SQLiteのファイルパスはそのまま返す。
func maskDSN(dsn string) string {
	if database.DriverFor(dsn) != database.DriverPostgres {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
