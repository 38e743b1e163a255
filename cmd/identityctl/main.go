package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	auth "github.com/eloquentlog/go-auth"
	"github.com/eloquentlog/go-auth/activitymap"
	"github.com/eloquentlog/go-auth/migrations"
	"github.com/eloquentlog/go-auth/queue"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	env     string
	cfg     *auth.Config
	logger  *auth.ZapLogger
	sqlDB   *sql.DB
	db      *bun.DB
	metrics *auth.Metrics
	audit   auth.ActivitySink
}

func (a *app) open(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, relying on environment")
	}

	cfg, err := auth.LoadConfig(ctx, a.env)
	if err != nil {
		return err
	}
	a.cfg = cfg

	zl, err := newZap(a.env)
	if err != nil {
		return err
	}
	a.logger = auth.NewZapLogger(zl).Named("identityctl")

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxPoolSize)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return fmt.Errorf("database: %w", err)
	}
	a.sqlDB = sqlDB
	a.db = bun.NewDB(sqlDB, pgdialect.New())
	a.metrics = auth.NewMetrics(prometheus.DefaultRegisterer)
	a.audit = activitymap.LoggerSink(a.logger.Named("audit"), activitymap.WithActorFallback("identityctl"))
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) repository() auth.RepositoryManager {
	repo := auth.NewRepositoryManager(a.db,
		auth.WithUserEmailsLogger(a.logger.Named("user_emails")),
		auth.WithUserEmailsMetrics(a.metrics),
		auth.WithUserEmailsActivitySink(a.audit),
	)
	repo.MustValidate()
	return repo
}

func newZap(env string) (*zap.Logger, error) {
	if env == auth.EnvProduction {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "identityctl",
		Short:         "Manage user email identities and activation vouchers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(commandContext(cmd))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.env, "env", auth.EnvDevelopment, "Configuration environment (production, testing, development)")

	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newRegisterCommand(a))
	cmd.AddCommand(newVoucherCommand(a))
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newMigrateCommand(a *app) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			if down {
				return migrations.Down(ctx, a.sqlDB)
			}
			return migrations.Up(ctx, a.sqlDB)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back the latest migration instead")
	return cmd
}

func newRegisterCommand(a *app) *cobra.Command {
	var msg auth.RegisterUserMessage

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user and queue its activation mail",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			rdb, err := queue.NewRedisClient(a.cfg.QueueURL, a.cfg.QueueMaxPoolSize)
			if err != nil {
				return err
			}
			defer rdb.Close()

			mailer := queue.NewRedisMailQueue(rdb, queue.WithLogger(a.logger.Named("queue")))
			handler := auth.NewRegisterUserHandler(a.repository(), a.cfg.ActivationKeys(), mailer,
				auth.WithRegisterUserLogger(a.logger),
				auth.WithRegisterUserActivitySink(a.audit),
				auth.WithRegisterUserMetrics(a.metrics),
			)

			msg.OnResponse = func(res *auth.RegisterUserResponse) {
				fmt.Fprintf(cmd.OutOrStdout(), "user %d registered, email %d pending\n", res.User.ID, res.Identity.ID)
			}
			return handler.Execute(ctx, msg)
		},
	}

	cmd.Flags().StringVar(&msg.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&msg.Password, "password", "", "Password")
	cmd.Flags().StringVar(&msg.Username, "username", "", "Username, defaults to the email local part")
	cmd.Flags().StringVar(&msg.Name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newVoucherCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voucher",
		Short: "Activation voucher operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newVoucherGrantCommand(a))
	cmd.AddCommand(newVoucherRedeemCommand(a))
	return cmd
}

func newVoucherGrantCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <email-id>",
		Short: "Grant a new activation voucher, superseding earlier ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid email id %q: %w", args[0], err)
			}

			emails := a.repository().UserEmails()
			identity, err := emails.GetByID(ctx, id)
			if err != nil {
				return err
			}

			voucher := emails.GrantActivationVoucher(ctx, identity, a.cfg.ActivationKeys())
			if voucher == nil {
				return fmt.Errorf("could not grant voucher for email %d", id)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_at=%d\n", voucher.Value, voucher.ExpiresAt)
			return nil
		},
	}
}

func newVoucherRedeemCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <voucher>",
		Short: "Redeem an activation voucher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			repo := a.repository()

			redeemer := auth.NewActivationRedeemer(repo, a.cfg.ActivationKeys(),
				auth.WithRedeemerUsers(repo.Users()),
				auth.WithRedeemerMetrics(a.metrics),
				auth.WithRedeemerLogger(a.logger),
				auth.WithRedeemerActivitySink(a.audit),
			)

			identity, err := redeemer.Redeem(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "email %d is %s\n", identity.ID, identity.ActivationState)
			return nil
		},
	}
}
