package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romariotrain/vod-platform/internal/app"
	"github.com/romariotrain/vod-platform/internal/auth"
	"github.com/romariotrain/vod-platform/internal/storage/postgres"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the media and outbox tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn is required")
			}

			db, err := postgres.Connect(cmd.Context(), cfg.Database.DSN, postgres.PoolConfig{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Re-dispatch every upload that has not reached ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, ctx, func(svcs *app.Services) error {
				report, err := svcs.NewRecoverer().Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d dispatched=%d failed=%d\n",
					report.Scanned, report.Dispatched, report.Failed)
				if report.Failed > 0 {
					return fmt.Errorf("%d records could not be dispatched", report.Failed)
				}
				return nil
			})
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove orphaned search documents and refresh stale ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, ctx, func(svcs *app.Services) error {
				res, err := svcs.NewReconciler().Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d removed=%d refreshed=%d\n",
					res.Scanned, res.Removed, res.Refreshed)
				return nil
			})
		},
	}
}

func newOutboxCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain-outbox",
		Short: "Push every pending ready event to the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, ctx, func(svcs *app.Services) error {
				publisher, err := svcs.NewOutboxPublisher()
				if err != nil {
					return err
				}
				total, err := publisher.Drain(cmd.Context())
				if err != nil {
					return fmt.Errorf("published %d before stopping: %w", total, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published=%d\n", total)
				return nil
			})
		},
	}
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		subject string
		roles   []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(subject, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Identity the token is issued to")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role granted to the identity (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func withServices(cmd *cobra.Command, ctx *commandContext, fn func(*app.Services) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	svcs, err := app.Open(cmd.Context(), cfg, ctx.logger())
	if err != nil {
		return err
	}
	defer svcs.Close()
	return fn(svcs)
}
