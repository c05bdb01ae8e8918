package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dojo-stack/server/internal/config"
	"github.com/dojo-stack/server/internal/stack"
	"github.com/dojo-stack/server/internal/viewport"
)

func newSimulateCmd() *cobra.Command {
	var (
		steps    int
		channels string
		center   int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Trace the window as items finish loading",
		Long:  `Builds the stack on an in-memory viewport, completes the newest item once per step and logs the window after each.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if cmd.Flags().Changed("channels") {
				cfg.Stack.Channels = channels
			}
			if cmd.Flags().Changed("center") {
				cfg.Stack.Center = center
			}
			return simulate(cmd, cfg, steps)
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 4, "number of load events to deliver")
	cmd.Flags().StringVarP(&channels, "channels", "c", "", "override the configured channels")
	cmd.Flags().IntVar(&center, "center", 0, "override the configured centre plane")
	return cmd
}

func simulate(cmd *cobra.Command, cfg *config.Config, steps int) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	geometry, err := cfg.Source.Geometry()
	if err != nil {
		return err
	}

	ctrl, err := stack.New(stack.Config{
		Channels:  cfg.Stack.Channels,
		Geometry:  geometry,
		MaxBuffer: cfg.Stack.MaxBuffer,
		Center:    cfg.Stack.Center,
		Logger:    logger.WithPrefix("stack"),
	})
	if err != nil {
		return err
	}

	vp := viewport.New()
	if err := ctrl.Attach(vp); err != nil {
		return err
	}

	for step := 0; step <= steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := ctrl.State()
		logger.Info("window",
			"step", step,
			"behind", s.Behind,
			"ahead", s.Ahead,
			"items", vp.ItemCount(),
			"capacity", ctrl.Capacity())
		logger.Debug("planes", "z", vp.Planes())

		if step == steps {
			break
		}
		if err := vp.CompleteAt(vp.ItemCount() - 1); err != nil {
			return err
		}
	}

	for _, it := range vp.Items() {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d  z=%-4d %-12s %.1f  %s\n", it.Position, it.Z, it.Kind, it.Opacity, it.Address)
	}
	return nil
}
