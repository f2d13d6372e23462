package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/calbook/internal/profile"
	"github.com/hrygo/calbook/server/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API access token signed with CALBOOK_JWT_SECRET",
	RunE: func(cmd *cobra.Command, _ []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		p := &profile.Profile{}
		p.FromEnv()
		if p.JWTSecret == "" {
			return errors.New("CALBOOK_JWT_SECRET is not set")
		}
		token, err := middleware.GenerateAccessToken(p.JWTSecret, subject, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "cli", "token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}
