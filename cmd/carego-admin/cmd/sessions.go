package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session maintenance",
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Invalidate every session whose expiry has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		svc := newServices(db, cliLogger())
		defer svc.close(cmd.Context())

		n, err := svc.sessions.SweepExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d expired session(s) invalidated\n", n)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsSweepCmd)
	rootCmd.AddCommand(sessionsCmd)
}
