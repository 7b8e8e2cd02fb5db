package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/clinicbase/phivault/cmd/app/commands"
	"github.com/clinicbase/phivault/internal/app"
	"github.com/clinicbase/phivault/internal/config"
)

func getRotationCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "rotate-data-key",
			Usage: "Rotate a data key and re-encrypt its records",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "key-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Data key ID to rotate",
				},
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID owning the key",
				},
				&cli.Int64Flag{
					Name:    "operator-id",
					Aliases: []string{"u"},
					Value:   0,
					Usage:   "User ID of the operator for the audit trail",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				orchestrator, err := container.RotationOrchestrator()
				if err != nil {
					return fmt.Errorf("failed to initialize rotation orchestrator: %w", err)
				}

				if cfg.MetricsEnabled {
					provider, err := container.MetricsProvider()
					if err != nil {
						return fmt.Errorf("failed to initialize metrics provider: %w", err)
					}
					stop := commands.StartMetricsServer(container.Logger(), provider.Handler(), cfg.MetricsPort)
					defer stop(ctx)
				}

				return commands.RunRotateDataKey(
					ctx,
					orchestrator,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("key-id"),
					cmd.Int64("operator-id"),
					cmd.Int64("organization-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-organization-key",
			Usage: "Rotate an organization key and re-wrap its data keys",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "key-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Organization key ID to rotate",
				},
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID owning the key",
				},
				&cli.Int64Flag{
					Name:    "operator-id",
					Aliases: []string{"u"},
					Value:   0,
					Usage:   "User ID of the operator for the audit trail",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				orchestrator, err := container.RotationOrchestrator()
				if err != nil {
					return fmt.Errorf("failed to initialize rotation orchestrator: %w", err)
				}

				if cfg.MetricsEnabled {
					provider, err := container.MetricsProvider()
					if err != nil {
						return fmt.Errorf("failed to initialize metrics provider: %w", err)
					}
					stop := commands.StartMetricsServer(container.Logger(), provider.Handler(), cfg.MetricsPort)
					defer stop(ctx)
				}

				return commands.RunRotateOrganizationKey(
					ctx,
					orchestrator,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("key-id"),
					cmd.Int64("operator-id"),
					cmd.Int64("organization-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotation-status",
			Usage: "Check a key against the rotation policy",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "key-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Key ID to check",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				orchestrator, err := container.RotationOrchestrator()
				if err != nil {
					return fmt.Errorf("failed to initialize rotation orchestrator: %w", err)
				}

				return commands.RunRotationStatus(
					ctx,
					orchestrator,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("key-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "keys-needing-rotation",
			Usage: "List an organization's active keys due for rotation",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				orchestrator, err := container.RotationOrchestrator()
				if err != nil {
					return fmt.Errorf("failed to initialize rotation orchestrator: %w", err)
				}

				return commands.RunKeysNeedingRotation(
					ctx,
					orchestrator,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Int64("organization-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "retire-deprecated-keys",
			Usage: "Retire deprecated keys whose grace period has elapsed",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				orchestrator, err := container.RotationOrchestrator()
				if err != nil {
					return fmt.Errorf("failed to initialize rotation orchestrator: %w", err)
				}

				return commands.RunRetireDeprecatedKeys(
					ctx,
					orchestrator,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Int64("organization-id"),
				)
			},
		},
	}
}
