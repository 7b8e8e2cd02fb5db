package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/clinicbase/phivault/cmd/app/commands"
	"github.com/clinicbase/phivault/internal/app"
	"github.com/clinicbase/phivault/internal/config"
)

func getAuditCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "compliance-report",
			Usage: "Generate an audit activity report for an organization",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID",
				},
				&cli.IntFlag{
					Name:    "days",
					Aliases: []string{"d"},
					Value:   30,
					Usage:   "Report on the trailing number of days",
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

				reporter, err := container.AuditReporter()
				if err != nil {
					return fmt.Errorf("failed to initialize audit reporter: %w", err)
				}

				return commands.RunComplianceReport(
					ctx,
					reporter,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Int64("organization-id"),
					cmd.Int("days"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "clean-audit-logs",
			Usage: "Delete an organization's audit logs older than specified days",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID",
				},
				&cli.IntFlag{
					Name:     "days",
					Aliases:  []string{"d"},
					Required: true,
					Usage:    "Delete audit logs older than this many days",
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

				reporter, err := container.AuditReporter()
				if err != nil {
					return fmt.Errorf("failed to initialize audit reporter: %w", err)
				}

				return commands.RunCleanAuditLogs(
					ctx,
					reporter,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Int64("organization-id"),
					cmd.Int("days"),
					cmd.String("format"),
				)
			},
		},
	}
}
