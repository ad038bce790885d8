package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ghosthq/internal/config"
	"ghosthq/internal/database"
	"ghosthq/internal/handler"
	"ghosthq/internal/hub"
	"ghosthq/internal/relay"
	"ghosthq/internal/store"
	"ghosthq/internal/store/memory"
	"ghosthq/internal/store/sqlstore"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// .envファイルを読み込み
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("⚠️  .env file not found, using default values: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(newCmd(config.New()).ExecuteContext(ctx))
}

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"port":            "server_port",
	"store":           "store_driver",
	"db-path":         "db_path",
	"allowed-origins": "allowed_origins",
	"public-url":      "public_url",
	"discord-webhook": "discord_webhook_url",
}

func newCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghosthq-server",
		Short: "Ghost hunt command center: squad chat, evidence, status and ghost events over HTTP and WebSocket.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 環境変数とフラグを読み込み
			cfg := config.Load(v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringP("port", "p", "", "port to listen on (env: SERVER_PORT)")
	fs.String("store", "", "store driver: memory, mysql, postgres or sqlite (env: STORE_DRIVER)")
	fs.String("db-path", "", "sqlite database file (env: DB_PATH)")
	fs.String("allowed-origins", "", "comma-separated CORS and WebSocket origins (env: ALLOWED_ORIGINS)")
	fs.String("public-url", "", "URL encoded in the /qr invite (env: PUBLIC_URL)")
	fs.String("discord-webhook", "", "Discord webhook that receives ghost events (env: DISCORD_WEBHOOK_URL)")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer s.Close()

	// WebSocket ブロードキャスターを開始
	broadcaster := hub.New(hub.DefaultBuffer)
	go broadcaster.Run(ctx)

	// Discord への中継（任意）
	if cfg.DiscordWebhookURL != "" {
		discord := relay.NewDiscord(cfg.DiscordWebhookURL, nil)
		broadcaster.Listen(discord.Observe)
		go discord.Run(ctx)
	}

	// ハンドラー初期化
	h := handler.New(s, broadcaster, cfg)
	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg)

	errs := make(chan error, 1)
	go func() {
		log.Println("🚀 Server started successfully")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Println("🛑 Shutting down...")
	broadcaster.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the in-memory store or a SQL store for cfg.StoreDriver
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return memory.New(), nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}

	// データベース接続を初期化
	db, err := database.Init(cfg)
	if err != nil {
		return nil, err
	}

	s, err := sqlstore.New(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func printBanner(cfg config.Config) {
	fmt.Println("========================================")
	fmt.Println("  Ghost HQ Command Center")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	switch cfg.StoreDriver {
	case config.DriverMySQL, config.DriverPostgres:
		fmt.Printf("  Database: %s %s@%s:%s/%s\n", cfg.StoreDriver, cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	case config.DriverSQLite:
		fmt.Printf("  Database: sqlite %s\n", cfg.DBPath)
	default:
		fmt.Println("  Database: in-memory")
	}
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	if cfg.DiscordWebhookURL != "" {
		fmt.Println("  Discord relay: enabled")
	}
	fmt.Println("========================================")
}
