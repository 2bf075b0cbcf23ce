package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gatekeep-io/gatekeep/internal/api"
	"github.com/gatekeep-io/gatekeep/internal/auth"
	"github.com/gatekeep-io/gatekeep/internal/cache"
	"github.com/gatekeep-io/gatekeep/internal/config"
	"github.com/gatekeep-io/gatekeep/internal/database"
	"github.com/gatekeep-io/gatekeep/internal/email"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gatekeep HTTP server",
	Long: `Run the gatekeep HTTP server.

Examples:
  gatekeep serve
  gatekeep serve --migrate
  GATEKEEP_SERVER_ADDRESS=:9090 gatekeep serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending database migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveMigrate {
		if err := database.Migrate(&cfg.Database); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store, err := newCacheStore(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect cache: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	mailer, err := email.NewMailer(&cfg.Email)
	if err != nil {
		return fmt.Errorf("configure mailer: %w", err)
	}

	svc := auth.NewService(
		database.NewUserRepository(pool),
		database.NewAuthLogRepository(pool),
		database.NewProviderLinkRepository(pool),
		store,
		mailer,
		&cfg.Auth,
	)

	server := api.NewServer(cfg, svc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return server.Shutdown()
	}
}

// newCacheStore picks Redis when configured, otherwise the in-process store.
func newCacheStore(cfg *config.RedisConfig) (cache.Store, error) {
	if cfg.Address == "" {
		log.Warn().Msg("redis not configured, using in-memory cache store")
		return cache.NewMemoryStore(0), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return cache.NewRedisStore(client), nil
}
