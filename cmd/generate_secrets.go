package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shcallaway/gmail-mcp-server/internal/crypto"
)

func newGenerateSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-secrets",
		Short: "Print fresh values for the secret environment variables",
		Long: `Generate cryptographically random values for TOKEN_ENCRYPTION_KEY and
JWT_SECRET. Copy the output into your .env file or deployment secrets.

Rotating TOKEN_ENCRYPTION_KEY invalidates all stored refresh tokens; users
will need to re-link their Google accounts. Rotating JWT_SECRET invalidates
all outstanding session tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			encryptionKey, err := crypto.GenerateEncryptionKey()
			if err != nil {
				return fmt.Errorf("failed to generate encryption key: %w", err)
			}
			jwtSecret, err := crypto.GenerateJWTSecret()
			if err != nil {
				return fmt.Errorf("failed to generate JWT secret: %w", err)
			}

			fmt.Printf("TOKEN_ENCRYPTION_KEY=%s\n", encryptionKey)
			fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
			return nil
		},
	}
}
