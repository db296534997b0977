package main

import (
	"fmt"

	"dashshot/pkg/auth"

	"github.com/spf13/cobra"
)

var tokenClient string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a shell client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth.InitJWT(cfg.JWT.Secret)
		token, err := auth.GenerateToken(tokenClient, cfg.JWT.ExpireTime)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenClient, "client", "shell", "client name recorded in the token")
}
