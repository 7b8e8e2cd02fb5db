package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/clinicbase/phivault/cmd/app/commands"
	"github.com/clinicbase/phivault/internal/app"
	"github.com/clinicbase/phivault/internal/config"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new master key for envelope encryption",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "Master key ID (e.g., prod-master-key-2026)",
				},
				&cli.StringFlag{
					Name:  "kms-provider",
					Value: "",
					Usage: "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault); omit for plaintext output",
				},
				&cli.StringFlag{
					Name:  "kms-key-uri",
					Value: "",
					Usage: "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/...)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterKey(
					ctx,
					cryptoService.NewKMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "create-organization-key",
			Usage: "Create the organization key wrapping an organization's data keys",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"alg"},
					Value:   "aes-gcm",
					Usage:   "Encryption algorithm to use (aes-gcm or chacha20-poly1305)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keys, err := container.KeyHierarchy()
				if err != nil {
					return fmt.Errorf("failed to initialize key hierarchy: %w", err)
				}

				return commands.RunCreateOrganizationKey(
					ctx,
					keys,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Int64("organization-id"),
					cmd.String("algorithm"),
				)
			},
		},
		{
			Name:  "create-data-key",
			Usage: "Create a data key for one record category of an organization",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:     "organization-id",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Organization ID",
				},
				&cli.StringFlag{
					Name:     "data-type",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Record category (case_history, mental_status, questionnaire, appointment)",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"alg"},
					Value:   "aes-gcm",
					Usage:   "Encryption algorithm to use (aes-gcm or chacha20-poly1305)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keys, err := container.KeyHierarchy()
				if err != nil {
					return fmt.Errorf("failed to initialize key hierarchy: %w", err)
				}

				return commands.RunCreateDataKey(
					ctx,
					keys,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.Int64("organization-id"),
					cmd.String("data-type"),
					cmd.String("algorithm"),
				)
			},
		},
	}
}
