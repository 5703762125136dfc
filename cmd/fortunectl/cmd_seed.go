package main

import (
	"github.com/spf13/cobra"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/seedkey"
)

type seedOutput struct {
	SeedKey       string             `json:"seedKey"`
	Parts         []string           `json:"parts"`
	ProviderSeed  int64              `json:"providerSeed"`
	LuckyElements seedkey.Decoration `json:"luckyElements"`
}

func newSeedCmd() *cobra.Command {
	flags := &paramsFlags{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Print the seed key and lucky elements for an input",
		Example: `  fortunectl seed -s tarot -l en
  fortunectl seed -s saju --birth-date 1990-05-15 --birth-time 14:30 -q "Will I move this year?"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := flags.params(cmd)
			if err != nil {
				return err
			}
			key := p.SeedKey()
			return printJSON(cmd.OutOrStdout(), seedOutput{
				SeedKey:       key,
				Parts:         p.Normalized().Parts(),
				ProviderSeed:  seedkey.ProviderSeed(key),
				LuckyElements: seedkey.Decorations(key, p.Locale),
			})
		},
	}
	flags.register(cmd)
	return cmd
}
