package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/miniiam/apiserver/config"
	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/server"
	"github.com/miniiam/apiserver/internal/services"
	"github.com/miniiam/apiserver/types"
	"github.com/spf13/cobra"
)

var (
	adminUsername   string
	adminDepartment string
)

// createAdminCmd bootstraps the first Admin account.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an Admin account",
	Long: `Creates an Admin account directly in the store. The password is read
from the MINIIAM_ADMIN_PASSWORD environment variable.

	miniiam create-admin --username root`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("MINIIAM_ADMIN_PASSWORD")
		if password == "" {
			return errors.New("MINIIAM_ADMIN_PASSWORD is required")
		}

		cfg := config.LoadConfig()
		if cfg.StoreBackend == config.StoreBackendMemory {
			return errors.New("create-admin needs a persistent store backend")
		}

		st, dbConn, err := server.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if dbConn != nil {
			defer func() { _ = dbConn.Close() }()
		}

		// Login is never called here, so the issuer only has to be valid.
		issuer, err := auth.NewIssuer("create-admin", cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		identity, err := services.NewIdentityService(st, auth.NewHasher(cfg.Auth.BcryptCost), issuer, audit.NewLedger(nil, cfg.MQ.AuditChannel))
		if err != nil {
			return err
		}

		var department *string
		if strings.TrimSpace(adminDepartment) != "" {
			department = &adminDepartment
		}
		user, err := identity.Register(cmd.Context(), services.RegisterInput{
			Username:   adminUsername,
			Password:   password,
			Role:       types.RoleAdmin,
			Department: department,
		})
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)
	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "admin username")
	createAdminCmd.Flags().StringVar(&adminDepartment, "department", "", "optional department")
	_ = createAdminCmd.MarkFlagRequired("username")
}
