package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/spf13/cobra"
)

var statusReason string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect and change user accounts",
}

var userStatusCmd = &cobra.Command{
	Use:   "status <user-id> <UNVERIFIED|ACTIVE|SUSPENDED|TERMINATED>",
	Short: "Move a user to a new account status",
	Long: `Sets the account status. SUSPENDED and TERMINATED also revoke every
session the user holds.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := store.ParseAccountStatus(args[1])
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		svc := newServices(db, cliLogger())
		res, err := setUserStatus(cmd.Context(), svc.admin, args[0], status, statusReason)
		if cerr := svc.close(cmd.Context()); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s is now %s; %d session(s) revoked\n", res.ID, res.AccountStatus, res.RevokedSessions)
		return nil
	},
}

func init() {
	userStatusCmd.Flags().StringVar(&statusReason, "reason", "", "free-text reason recorded in the audit log")
	userCmd.AddCommand(userStatusCmd)
	rootCmd.AddCommand(userCmd)
}

func setUserStatus(ctx context.Context, admin *auth.AdminService, userID string, status store.AccountStatus, reason string) (*auth.StatusResult, error) {
	res, err := admin.SetStatus(ctx, auth.Operator, userID, status, reason, operatorMeta)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return res, err
}
