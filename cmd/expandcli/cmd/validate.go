package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module/builtin"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	var load bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and, by default, load every module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global.configPath)
			if err != nil {
				return err
			}
			known := make(map[string]bool)
			for _, t := range builtin.Types() {
				known[t] = true
			}
			for _, m := range cfg.Modules {
				if !known[m.Type] {
					return fmt.Errorf("module %s: unknown type %q", m.ID, m.Type)
				}
			}
			if !load {
				fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d modules\n", len(cfg.Modules))
				return nil
			}
			reg, err := builtin.Load(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d modules loaded\n", reg.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&load, "load", true, "Load every lexicon and model, not only parse the config")
	return cmd
}
