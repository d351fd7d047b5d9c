package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jassnet/Fraudhunter/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Admin token management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate an admin token and its ADMIN_TOKEN_HASH",
		Long: `generate prints a new admin token once. Store the hash in
ADMIN_TOKEN_HASH and hand the token to whoever runs jobs; it cannot be
recovered from the hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := auth.GenerateAdminToken()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "token: %s\nADMIN_TOKEN_HASH=%s\n", tok.Plaintext, tok.Hash)
			return err
		},
	})
	return cmd
}
