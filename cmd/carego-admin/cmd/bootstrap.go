package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/spf13/cobra"
)

var (
	bootstrapIdentifier  string
	bootstrapPasswordEnv string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first SUPER_ADMIN account",
	Long: `Creates an ACTIVE SUPER_ADMIN. The password is read from the environment
variable named by --password-env so it never appears in shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv(bootstrapPasswordEnv)
		if password == "" {
			return fmt.Errorf("%s is empty", bootstrapPasswordEnv)
		}
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		svc := newServices(db, cliLogger())
		u, err := bootstrapAdmin(cmd.Context(), svc.admin, bootstrapIdentifier, password)
		if cerr := svc.close(cmd.Context()); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created SUPER_ADMIN %s (%s)\n", u.Identifier, u.ID)
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapIdentifier, "identifier", "", "email or phone of the administrator")
	bootstrapCmd.Flags().StringVar(&bootstrapPasswordEnv, "password-env", "CAREGO_ADMIN_PASSWORD", "environment variable holding the password")
	_ = bootstrapCmd.MarkFlagRequired("identifier")
	rootCmd.AddCommand(bootstrapCmd)
}

func bootstrapAdmin(ctx context.Context, admin *auth.AdminService, identifier, password string) (*auth.MeResult, error) {
	res, err := admin.CreateUser(ctx, auth.Operator, auth.CreateUserInput{
		Identifier: identifier,
		Password:   password,
		Role:       string(store.RoleSuperAdmin),
	}, operatorMeta)
	if errors.Is(err, auth.ErrUserExists) {
		return nil, fmt.Errorf("identifier %s is already registered", identifier)
	}
	return res, err
}
