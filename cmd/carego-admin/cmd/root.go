package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/config"
	"github.com/example/carego/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "carego-admin",
	Short: "Operator tooling for the Carego auth service",
	Long: `Bootstrap administrators, move accounts between statuses and sweep
expired sessions against the configured database, through the same session
and admin services the server uses.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")
}

// openStore loads configuration the same way the server does.
func openStore(ctx context.Context) (store.DB, error) {
	if _, err := config.LoadEnv(ctx, envFile); err != nil {
		return nil, err
	}
	c, err := config.New()
	if err != nil {
		return nil, err
	}
	if c.DBAdapter == "memory" {
		return nil, fmt.Errorf("DB_ADAPTER=memory has nothing to administer")
	}
	return store.Open(ctx, c)
}

// services is the slice of the auth core the CLI drives. Audit entries go to
// the database, as they do from the server.
type services struct {
	sessions *auth.SessionManager
	admin    *auth.AdminService
	audit    *auth.Auditor
}

func newServices(db store.DB, log *zap.Logger) *services {
	audit := auth.NewAuditor(16, nil, log, auth.NewStoreAuditWriter(db))
	sessions := auth.NewSessionManager(db, time.Now, log)
	return &services{
		sessions: sessions,
		admin:    auth.NewAdminService(db, sessions, audit, log),
		audit:    audit,
	}
}

// close waits for queued audit entries to reach the database.
func (s *services) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.audit.Close(ctx)
}

func cliLogger() *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// operatorMeta tags CLI actions in session and audit metadata.
var operatorMeta = auth.RequestMeta{ClientString: "carego-admin"}
