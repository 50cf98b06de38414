package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/config"
)

var (
	tokenUserID   int64
	tokenUsername string
	tokenRoles    string
)

// tokenCmd mints a JWT for service accounts and scripting; interactive
// users normally get theirs from the login flow
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a JWT for a service account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configDir)
		if err != nil {
			return err
		}

		roles := strings.Split(tokenRoles, ",")
		for i := range roles {
			roles[i] = strings.TrimSpace(roles[i])
		}
		for _, role := range roles {
			if auth.GetRoleByName(role) == nil {
				return fmt.Errorf("unknown role: %s", role)
			}
		}

		svc := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		token, err := svc.GenerateToken(tokenUserID, tokenUsername, roles)
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "user id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "username to embed in the token")
	tokenCmd.Flags().StringVar(&tokenRoles, "roles", "tester", "comma-separated roles")
	tokenCmd.MarkFlagRequired("user-id")
	tokenCmd.MarkFlagRequired("username")
}
