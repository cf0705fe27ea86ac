package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"intsync/internal/config"
	"intsync/internal/models"
	"intsync/internal/store"
	"intsync/internal/store/postgres"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage console accounts",
}

var userAddInput store.CreateUserInput

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account with an explicit role",
	RunE: func(cmd *cobra.Command, args []string) error {
		input := userAddInput
		input.Email = strings.TrimSpace(input.Email)
		input.Role = strings.ToLower(strings.TrimSpace(input.Role))
		if err := validateUserInput(input); err != nil {
			return err
		}

		cfg := config.Load()
		pool, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		user, err := postgres.NewStore(pool).CreateUser(cmd.Context(), input)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) as %s\n", user.Email, user.UserID, user.Role)
		return nil
	},
}

func init() {
	flags := userAddCmd.Flags()
	flags.StringVar(&userAddInput.Email, "email", "", "login email")
	flags.StringVar(&userAddInput.Name, "name", "", "display name")
	flags.StringVar(&userAddInput.Password, "password", "", "initial password")
	flags.StringVar(&userAddInput.Role, "role", models.RoleStaff, "admin, manager or staff")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userAddCmd)
}

func validateUserInput(input store.CreateUserInput) error {
	if !strings.Contains(input.Email, "@") {
		return fmt.Errorf("invalid email %q", input.Email)
	}
	if len(input.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if !models.ValidRole(input.Role) {
		return fmt.Errorf("unknown role %q", input.Role)
	}
	return nil
}
