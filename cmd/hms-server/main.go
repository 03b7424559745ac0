package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/account"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(accountCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, d *deps) error {
				count, err := db.NewMigrator(d.pool, cfg.MigrationsDir).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, d *deps) error {
				statuses, err := db.NewMigrator(d.pool, cfg.MigrationsDir).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
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
	})

	return cmd
}

// accountCmd provisions staff accounts, which cannot self-register. It is how
// the first admin gets created.
func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with any role",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req account.CreateRequest
			req.Email, _ = cmd.Flags().GetString("email")
			req.Name, _ = cmd.Flags().GetString("name")
			req.Role, _ = cmd.Flags().GetString("role")
			req.Password, _ = cmd.Flags().GetString("password")
			if req.Password == "" {
				req.Password = os.Getenv("HMS_ACCOUNT_PASSWORD")
			}
			if req.Password == "" {
				return errors.New("--password or HMS_ACCOUNT_PASSWORD is required")
			}

			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, d *deps) error {
				a, err := d.accounts.CreateAccount(ctx, req)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s account %s (%s)\n", a.Role, a.Email, a.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("email", "", "Account email")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("role", "admin", "Role: patient, doctor, staff, lab_technician, pharmacist or admin")
	createCmd.Flags().String("password", "", "Initial password (falls back to HMS_ACCOUNT_PASSWORD)")

	cmd.AddCommand(createCmd)
	return cmd
}

// withPool loads config, connects, wires services and runs fn.
func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, d *deps) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Env, os.Stderr)
	d, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	return fn(ctx, cfg, d)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	d, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise dependencies")
		return err
	}
	defer d.close()
	logger.Info().Msg("connected to database")

	e := newServer(cfg, logger, d.pool)
	registerRoutes(e, cfg, d.tokens,
		account.NewHandler(d.accounts),
		patient.NewHandler(d.patients),
	)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newLogger writes JSON in every environment except development, which gets
// the console writer.
func newLogger(env string, out *os.File) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// compile-time check that the token manager satisfies both consumers.
var (
	_ auth.Verifier       = (*auth.TokenManager)(nil)
	_ account.TokenIssuer = (*auth.TokenManager)(nil)
)
