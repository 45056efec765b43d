package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Gopher0727/GlobalChat/config"
	"github.com/Gopher0727/GlobalChat/middleware/jwt"
)

// tokenCmd 为指定的平台用户签发管理 API 令牌
func tokenCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a platform user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.LoadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not set")
			}
			tm := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)
			token, err := tm.GenerateToken(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "platform user id")
	cmd.Flags().StringVar(&name, "name", "", "display name stored in the token")
	return cmd
}
