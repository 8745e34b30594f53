package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/auth"
	"github.com/bizmatters/plc-copilot/context-engine/internal/config"
)

// MinPasswordLength is the minimum password length requirement
const MinPasswordLength = 8

var (
	emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	hasLetter  = regexp.MustCompile(`[a-zA-Z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := newRootCmd(config.New()).Execute(); err != nil {
		slog.Error("seed-operator failed", "error", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command. v supplies database_url from the
// environment or config.yaml unless --database-url is given.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "seed-operator",
		Short: "Create an operator account for the context engine",
		Long: `seed-operator inserts one operator into the operators table, creating
the table first if needed. The operator can then sign in through
POST /api/auth/login.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateInputs(name, email, password); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			dbURL := v.GetString("database_url")
			if dbURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			tp, err := initTracer()
			if err != nil {
				return err
			}
			defer tp.Shutdown(context.Background())

			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}

			operatorID, err := createOperator(ctx, pool, name, email, password)
			if err != nil {
				return fmt.Errorf("failed to create operator: %w", err)
			}

			slog.Info("created operator", "id", operatorID, "name", name, "email", email)
			fmt.Fprintln(cmd.OutOrStdout(), operatorID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name of the operator")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (min 8 chars, letters and numbers)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = v.BindPFlag("database_url", cmd.Flags().Lookup("database-url"))

	return cmd
}

// validateInputs validates operator input according to security requirements
func validateInputs(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required and cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if !hasLetter.MatchString(password) || !hasNumber.MatchString(password) {
		return fmt.Errorf("password must contain at least one letter and one number")
	}
	return nil
}

// createOperator ensures the operators table exists and inserts the operator in one transaction
func createOperator(ctx context.Context, pool *pgxpool.Pool, name, email, password string) (string, error) {
	ctx, span := otel.Tracer("seed-operator").Start(ctx, "create_operator")
	defer span.End()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := auth.EnsureOperatorSchema(ctx, tx); err != nil {
		return "", err
	}

	id, err := auth.NewOperatorStore(tx).CreateOperator(ctx, strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(trace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}
