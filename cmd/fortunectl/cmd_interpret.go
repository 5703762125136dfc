package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/corecache"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/pipeline"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/provider"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
)

type readingOptions struct {
	params  paramsFlags
	dryRun  bool
	timeout time.Duration
}

func (o *readingOptions) register(cmd *cobra.Command) {
	o.params.register(cmd)
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "answer with a canned local provider instead of the configured one")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 5*time.Minute, "overall deadline")
}

// service builds a pipeline on a process-local cache. The configured
// providers are used unless dry-run is set.
func (o *readingOptions) service(root *rootOptions) (*pipeline.Service, error) {
	var stages provider.Stages
	if o.dryRun {
		stages = provider.Stages{Core: dryRunProvider()}
	} else {
		cfg, err := root.loadConfig()
		if err != nil {
			return nil, err
		}
		stages, err = provider.FromConfig(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("%w (use --dry-run to try without credentials)", err)
		}
	}
	return pipeline.NewService(corecache.NewMemory(corecache.Options{}), stages, root.logger()), nil
}

func newInterpretCmd(root *rootOptions) *cobra.Command {
	opts := &readingOptions{}
	var tierName string
	cmd := &cobra.Command{
		Use:   "interpret",
		Short: "Generate one reading at a tier",
		Example: `  fortunectl interpret -s tarot -l en --tier pro --card "The Tower" --card "The Star:r"
  fortunectl interpret -s saju --birth-date 1990-05-15 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := tier.Parse(tierName)
			if err != nil {
				return err
			}
			p, err := opts.params.params(cmd)
			if err != nil {
				return err
			}
			svc, err := opts.service(root)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			out, err := svc.Interpret(ctx, p, t, t)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVarP(&tierName, "tier", "t", tier.Free.String(), "free, plus, pro or archmage")
	return cmd
}

func newCompareCmd(root *rootOptions) *cobra.Command {
	opts := &readingOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Generate the reading at every tier from one core",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := opts.params.params(cmd)
			if err != nil {
				return err
			}
			svc, err := opts.service(root)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			out, err := svc.CompareAll(ctx, p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	opts.register(cmd)
	return cmd
}
