/**
 * @description
 * This is the entry point wiring for the ledgerctl operator CLI. It is
 * responsible for initializing all components of the service: configuration,
 * the PostgreSQL connection pool, the ledger repository, the optional
 * RabbitMQ producer and Redis idempotency guard, and the transfer engine.
 * Subcommands map one-to-one to the engine's boundary operations.
 *
 * @dependencies
 * - github.com/spf13/cobra: Command-line parsing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Optional idempotency backend.
 * - internal/app, internal/config, internal/store, pkg/rabbitmq: Service wiring.
 */

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/corebank/ledger-service/internal/app"
	"github.com/corebank/ledger-service/internal/config"
	"github.com/corebank/ledger-service/internal/store"
	rmrabbit "github.com/corebank/ledger-service/pkg/rabbitmq"
)

// Execute runs the root command. Errors have already been printed by cobra.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "ledgerctl operates the banking ledger core",
		Long:          "ledgerctl opens accounts, moves money, and reads statements against the ledger database.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newMigrateCmd(),
		newOpenAccountCmd(),
		newAccountsCmd(),
		newBalanceCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newTransferCmd(),
		newExternalTransferCmd(),
		newTransactionsCmd(),
		newStatementCmd(),
	)
	return root
}

// runtime bundles everything a subcommand needs after bootstrap.
type runtime struct {
	cfg     config.Config
	service *app.Service
	close   func()
}

// bootstrap loads configuration and constructs the engine with its
// dependencies. RabbitMQ and Redis are optional: when unconfigured or
// unreachable the engine degrades to no-op events and no idempotency guard.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be configured")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database url parse failed: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	closers := []func(){dbpool.Close}

	var producer rmrabbit.Publisher
	if cfg.RabbitMQURL != "" {
		eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.LedgerEventExchange)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		} else {
			producer = eventProducer
			closers = append(closers, eventProducer.Close)
		}
	}

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, producer, cfg.ConflictMaxRetries)

	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; idempotency disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; idempotency disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				ttl := time.Duration(cfg.IdempotencyTTLMinutes) * time.Minute
				service.SetIdempotencyGuard(app.NewRedisIdempotencyGuard(redisClient, cfg.RedisKeyPrefix, ttl))
				closers = append(closers, func() { redisClient.Close() })
			}
		}
	}

	return &runtime{
		cfg:     cfg,
		service: service,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// withRuntime wraps a subcommand body with bootstrap and teardown.
func withRuntime(fn func(ctx context.Context, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.close()
		return fn(ctx, rt, args)
	}
}
