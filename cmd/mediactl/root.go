package main

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/romariotrain/vod-platform/internal/config"
	"github.com/romariotrain/vod-platform/internal/logging"
)

type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	err    error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		c.config, c.err = config.Load(strings.TrimSpace(*c.configFlag))
	})
	return c.config, c.err
}

func (c *commandContext) logger() zerolog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return zerolog.Nop()
	}
	return logging.New(cfg.Log, "mediactl")
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Operator tool for the media platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newRecoverCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newOutboxCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
