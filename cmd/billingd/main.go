package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/servineo/billing/internal/checkout"
	"github.com/servineo/billing/internal/clickcache"
	"github.com/servineo/billing/internal/httpapi"
	"github.com/servineo/billing/internal/store/gormstore"
	"github.com/servineo/billing/pkg/clicks"
	"github.com/servineo/billing/pkg/wallet"
)

const (
	envPrefix = "BILLINGD"

	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagRedisAddr       = "redis-addr"
	flagCheckoutBaseURL = "checkout-base-url"
	flagCheckoutAPIKey  = "checkout-api-key"
	flagClickFeeCents   = "click-fee-cents"
	flagAllowedOrigins  = "allowed-origins"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagJWTCookieName   = "jwt-cookie-name"
	flagAdminRole       = "admin-role"

	defaultDatabaseURL = "sqlite:///tmp/billing.db"
	defaultListenAddr  = ":8090"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	RedisAddr       string
	CheckoutBaseURL string
	CheckoutAPIKey  string
	ClickFeeCents   int64
	AllowedOrigins  string
	JWTSigningKey   string
	JWTIssuer       string
	JWTCookieName   string
	AdminRole       string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "billingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "billingd",
		Short:         "Pay-per-click billing and wallet ledger server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagRedisAddr, "", "redis address for the click duplicate cache (optional)")
	cmd.Flags().String(flagCheckoutBaseURL, "", "payment provider base URL (optional, disables deposits when empty)")
	cmd.Flags().String(flagCheckoutAPIKey, "", "payment provider API key")
	cmd.Flags().Int64(flagClickFeeCents, clicks.DefaultClickFeeCents.Int64(), "fee charged per billable click, in cents")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().String(flagAdminRole, "", "role required for admin endpoints")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{
		flagDatabaseURL, flagListenAddr, flagRedisAddr,
		flagCheckoutBaseURL, flagCheckoutAPIKey, flagClickFeeCents,
		flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer,
		flagJWTCookieName, flagAdminRole,
	} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.CheckoutBaseURL = strings.TrimSpace(v.GetString(flagCheckoutBaseURL))
	cfg.CheckoutAPIKey = strings.TrimSpace(v.GetString(flagCheckoutAPIKey))
	cfg.ClickFeeCents = v.GetInt64(flagClickFeeCents)
	cfg.AllowedOrigins = strings.TrimSpace(v.GetString(flagAllowedOrigins))
	cfg.JWTSigningKey = strings.TrimSpace(v.GetString(flagJWTSigningKey))
	cfg.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.JWTCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))
	cfg.AdminRole = strings.TrimSpace(v.GetString(flagAdminRole))

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	if cfg.JWTSigningKey == "" {
		return fmt.Errorf("%s is required", flagJWTSigningKey)
	}
	if cfg.ClickFeeCents <= 0 {
		return fmt.Errorf("%s must be positive", flagClickFeeCents)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	clock := func() int64 { return time.Now().UTC().Unix() }

	var checkoutProvider wallet.CheckoutProvider
	if cfg.CheckoutBaseURL != "" {
		client, err := checkout.New(cfg.CheckoutBaseURL, cfg.CheckoutAPIKey, nil)
		if err != nil {
			return fmt.Errorf("checkout client init: %w", err)
		}
		checkoutProvider = client
	}

	walletStore := gormstore.NewWalletStore(gormDB)
	walletService, err := wallet.NewService(walletStore, checkoutProvider, clock,
		wallet.WithOperationLogger(&zapOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("wallet service init: %w", err)
	}

	clickOptions := []clicks.ServiceOption{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		clickOptions = append(clickOptions, clicks.WithDuplicateGuard(clickcache.New(redisClient, clickcache.DefaultConfig())))
	}

	settingsStore := gormstore.NewSettingsStore(gormDB)
	clickService, err := clicks.NewService(
		gormstore.NewClickStore(gormDB),
		walletService,
		settingsStore,
		clicks.Policy{ClickFeeCents: wallet.AmountCents(cfg.ClickFeeCents)},
		clock,
		clickOptions...,
	)
	if err != nil {
		return fmt.Errorf("click service init: %w", err)
	}

	return httpapi.Run(ctx, httpapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		SessionSigningKey: cfg.JWTSigningKey,
		SessionIssuer:     cfg.JWTIssuer,
		SessionCookieName: cfg.JWTCookieName,
		AdminRole:         cfg.AdminRole,
	}, httpapi.Dependencies{
		Logger:   logger,
		Wallet:   walletService,
		Clicks:   clickService,
		Settings: settingsStore,
	})
}

// zapOperationLogger adapts zap to the ledger's operation callback.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("wallet_id", entry.WalletID),
		zap.String("type", entry.Type.String()),
		zap.Int64("amount_cents", entry.AmountCents.Int64()),
		zap.String("reference_id", entry.ReferenceID),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		adapter.logger.Warn("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info("ledger operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{TranslateError: true}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "billing.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
