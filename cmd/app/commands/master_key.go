package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
)

// RunCreateMasterKey generates a cryptographically secure 32-byte master key for
// envelope encryption. Key material is zeroed from memory after encoding.
// If keyID is empty, generates a default ID in format "master-key-YYYY-MM-DD".
//
// When kmsProvider and kmsKeyURI are set, the master key is encrypted with the KMS
// before output and MASTER_ENCRYPTION_KEY holds the ciphertext. With no provider
// the plaintext base64 key is printed for direct environment use; only do that in
// development.
//
// Output format:
//   - MASTER_ENCRYPTION_KEY="<base64>"
//   - MASTER_KEY_ID="<keyID>"
//   - KMS_PROVIDER / KMS_KEY_URI when KMS mode is used
func RunCreateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	out io.Writer,
	keyID, kmsProvider, kmsKeyURI string,
) error {
	if (kmsProvider == "") != (kmsKeyURI == "") {
		return fmt.Errorf("--kms-provider and --kms-key-uri must be set together")
	}

	// Generate default key ID if not provided
	if keyID == "" {
		keyID = fmt.Sprintf("master-key-%s", time.Now().Format("2006-01-02"))
	}

	// Generate a cryptographically secure 32-byte master key
	masterKey := make([]byte, keysDomain.KeySize)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer keysDomain.Zero(masterKey)

	if kmsProvider == "" {
		logger.Warn("generating plaintext master key, use a KMS provider in production")

		fmt.Fprintln(out, "# Master Key Configuration (environment mode)")
		fmt.Fprintln(out, "# Copy these environment variables to your .env file or secrets manager")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "MASTER_ENCRYPTION_KEY=\"%s\"\n", base64.StdEncoding.EncodeToString(masterKey))
		fmt.Fprintf(out, "MASTER_KEY_ID=\"%s\"\n", keyID)
		return nil
	}

	keeper, err := kmsService.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			logger.Error("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	// Encrypt master key with KMS
	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}

	fmt.Fprintln(out, "# Master Key Configuration (KMS mode)")
	fmt.Fprintln(out, "# Copy these environment variables to your .env file or secrets manager")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
	fmt.Fprintf(out, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	fmt.Fprintf(out, "MASTER_ENCRYPTION_KEY=\"%s\"\n", base64.StdEncoding.EncodeToString(ciphertext))
	fmt.Fprintf(out, "MASTER_KEY_ID=\"%s\"\n", keyID)

	return nil
}
