package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tarotlab/fortune-core/internal/config"
	"github.com/tarotlab/fortune-core/internal/database"
	"github.com/tarotlab/fortune-core/internal/modules/account/entitlement"
	"github.com/tarotlab/fortune-core/internal/modules/account/quota"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	pkgredis "github.com/tarotlab/fortune-core/internal/pkg/redis"
)

type quotaOptions struct {
	userID string
	limit  int
}

func newQuotaCmd(root *rootOptions) *cobra.Command {
	opts := &quotaOptions{}
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or consume a user's daily question quota",
	}
	cmd.PersistentFlags().StringVarP(&opts.userID, "user", "u", "", "user ID")
	cmd.PersistentFlags().IntVar(&opts.limit, "limit", 0, "daily limit; defaults to the user's entitlement, -1 is unlimited")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show today's usage without changing it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(cmd, root, func(ctx context.Context, l quota.Ledger, limit int) (quota.Result, error) {
					return l.Status(ctx, opts.userID, limit)
				})
			},
		},
		&cobra.Command{
			Use:   "consume",
			Short: "Charge one question against today's quota",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(cmd, root, func(ctx context.Context, l quota.Ledger, limit int) (quota.Result, error) {
					return l.CheckAndIncrement(ctx, opts.userID, limit)
				})
			},
		},
	)
	return cmd
}

type ledgerFunc func(ctx context.Context, l quota.Ledger, limit int) (quota.Result, error)

func (o *quotaOptions) run(cmd *cobra.Command, root *rootOptions, fn ledgerFunc) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := root.logger()

	zone, err := calendar.New(cfg.Quota.Timezone)
	if err != nil {
		return err
	}
	db, err := database.Connect(cfg, false, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	limit := o.limit
	if !cmd.Flags().Changed("limit") {
		e, err := entitlement.NewService(db).Get(ctx, o.userID)
		switch {
		case err == nil:
			limit = e.DailyQuestionLimit
		case errors.Is(err, entitlement.ErrNotFound):
			limit = entitlement.Anonymous().DailyQuestionLimit
		default:
			return fmt.Errorf("resolve entitlement: %w", err)
		}
	}

	var ledger quota.Ledger
	if cfg.Quota.Driver == config.DriverRedis {
		rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		ledger = quota.NewRedisLedger(rc.Raw(), zone)
	} else {
		ledger = quota.NewGormLedger(db, zone, logger)
	}

	res, err := fn(ctx, ledger, limit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
