package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "gc",
		Short:         "Run one garbage collection sweep and exit",
		Long:          "Deletes unrestricted documents not modified within gc.ageSeconds. Activity records are kept.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			conf, log, err := loadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if conf.GC.AgeSeconds <= 0 {
				return errors.New("gc.ageSeconds must be set to run a sweep")
			}

			a, cleanup, err := build(ctx, conf, log)
			defer cleanup()
			if err != nil {
				return err
			}

			deleted, err := a.gc.Sweep(ctx)
			if err != nil {
				return errors.Wrap(err, "sweep")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d documents\n", deleted)
			return nil
		},
	}
}
