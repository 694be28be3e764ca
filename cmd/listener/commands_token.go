package main

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MoonShineVFX/meal-system-sub001/internal/auth"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

func buildTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token for a user and role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd, userID, role, secret, ttl)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id carried by the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "Role (USER, STAFF, ADMIN, SERVER)")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret (defaults to $JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runToken(cmd *cobra.Command, userID, roleName, secret string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("a signing secret is required (--secret or JWT_SECRET)")
	}
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return err
	}

	token, err := auth.NewTokenManager(secret, ttl).GenerateToken(userID, role)
	if err != nil {
		return err
	}
	printf(cmd, "%s\n", token)
	return nil
}
