package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/doctorbot/doctorbot/internal/config"
	"github.com/doctorbot/doctorbot/internal/dialog"
	"github.com/doctorbot/doctorbot/internal/domain/clinic"
	"github.com/doctorbot/doctorbot/internal/platform/bot"
	"github.com/doctorbot/doctorbot/internal/platform/db"
	"github.com/doctorbot/doctorbot/internal/platform/middleware"
	"github.com/doctorbot/doctorbot/internal/platform/seed"
	"github.com/doctorbot/doctorbot/internal/platform/telegram"
	"github.com/doctorbot/doctorbot/migrations"
)

const (
	version            = "0.1.0"
	defaultWebhookPath = "/telegram/webhook"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "doctorbot",
		Short: "Telegram bot for booking doctor appointments",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and its HTTP health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: built-in migrations)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: built-in migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference doctors, schedules and sample patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("reset")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("seed writes to postgres; STORE_DRIVER is %q (the memory store is seeded by serve)", cfg.StoreDriver)
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			sum, err := b.seeder(cfg.Location(), logger).Seed(ctx, reset)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d user(s), %d doctor(s), %d schedule(s), %d appointment(s), %d review(s).\n",
				sum.Users, sum.Doctors, sum.Schedules, sum.Appointments, sum.Reviews)
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "Delete all clinic rows before seeding")
	return cmd
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func withMigrator(ctx context.Context, dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURI, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrationFiles(dir)))
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

// backend is the clinic store chosen by STORE_DRIVER. Exactly one of store
// and mem is set.
type backend struct {
	svc   *clinic.Service
	store *db.Store
	mem   *clinic.MemStore
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := clinic.NewMemStore()
		logger.Warn().Msg("using in-memory store; data is lost on exit")
		return &backend{svc: mem.Service(), mem: mem}, nil
	case config.StorePostgres:
		store, err := db.Open(ctx, cfg.DatabaseURI, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &backend{svc: clinic.NewGormService(store.Gorm), store: store}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func (b *backend) Close() {
	if b.store != nil {
		b.store.Close()
	}
}

func (b *backend) seeder(loc *time.Location, logger zerolog.Logger) *seed.Seeder {
	if b.store != nil {
		purge := func(ctx context.Context) error { return clinic.PurgeGorm(ctx, b.store.Gorm) }
		return seed.New(b.svc, b.store.InTx, purge, loc, logger)
	}
	purge := func(context.Context) error {
		b.mem.Reset()
		return nil
	}
	return seed.New(b.svc, nil, purge, loc, logger)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func (b *backend) healthHandler() echo.HandlerFunc {
	if b.store != nil {
		return db.PoolHealthHandler(b.store.Pool)
	}
	return db.HealthHandler(pingFunc(func(context.Context) error { return nil }), nil)
}

// newServer builds the HTTP surface: health probes always, the Telegram
// webhook when updates is non-nil.
func newServer(cfg *config.Config, logger zerolog.Logger, b *backend, updates chan<- bot.Update) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", b.healthHandler())

	if updates != nil {
		e.POST(webhookPath(cfg.WebhookURL), telegram.WebhookHandler(cfg.WebhookSecret, updates, logger))
	}
	return e
}

// webhookPath is the path component of the public webhook URL.
func webhookPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return defaultWebhookPath
	}
	return u.Path
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if b.mem != nil {
		if _, err := b.seeder(cfg.Location(), logger).Seed(ctx, false); err != nil {
			return err
		}
	}

	sessions := dialog.NewSessions()
	machine := dialog.NewMachine(b.svc, sessions, dialog.Config{
		HorizonDays:  cfg.BookingHorizonDays,
		Location:     cfg.Location(),
		StrictRating: cfg.ReviewStrictRating,
	})

	api, err := telegram.NewBotAPI(cfg.TelegramBotToken, cfg.BotDebug)
	if err != nil {
		return err
	}
	logger.Info().Str("bot", api.Self.UserName).Str("mode", cfg.BotMode).Msg("connected to telegram")

	client := telegram.NewClient(api, logger)
	if err := client.RegisterCommands(); err != nil {
		logger.Warn().Err(err).Msg("failed to register bot commands")
	}

	updates := make(chan bot.Update, cfg.BotWorkers*16)
	dispatcher := bot.NewDispatcher(machine, client, cfg.BotWorkers, logger)

	var webhookUpdates chan<- bot.Update
	if cfg.BotMode == config.ModeWebhook {
		if err := client.SetWebhook(cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			return err
		}
		webhookUpdates = updates
	} else if err := client.DeleteWebhook(); err != nil {
		return err
	}
	e := newServer(cfg, logger, b, webhookUpdates)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return dispatcher.Run(ctx, updates)
	})
	if cfg.BotMode == config.ModePolling {
		g.Go(func() error {
			defer cancel()
			return telegram.Poll(ctx, api, cfg.PollTimeout, updates, logger)
		})
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Int("conversations", sessions.Len()).Msg("stopped")
	return err
}
