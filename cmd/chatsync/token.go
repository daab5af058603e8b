package main

import (
	"fmt"
	"os"
	"time"

	"ChatSync/tools/security"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("secret", "", "HMAC secret (default $CHATSYNC_DEV_SECRET)")
	tokenCmd.Flags().String("alg", "HS256", "HS256, HS384 or HS512")
	tokenCmd.Flags().Duration("ttl", 2*time.Hour, "token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint a development credential for a local message service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("CHATSYNC_DEV_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("--secret or CHATSYNC_DEV_SECRET is required")
		}
		alg, _ := cmd.Flags().GetString("alg")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		opts := security.DefaultOptions([]byte(secret))
		opts.Alg = alg
		opts.TTL = ttl
		tok, exp, err := security.Generate(opts, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
		return nil
	},
}
