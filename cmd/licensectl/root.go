package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"licensed/internal/config"
	"licensed/internal/infrastructure"
	"licensed/internal/license"
	"licensed/internal/store"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "licensectl",
		Short:         "Operator tooling for the license service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newLicenseCommand())
	root.AddCommand(newCodeCommand())

	return root
}

// withService opens the store from configuration, builds the license
// service, and hands both to fn. The connection is closed on return.
func withService(fn func(ctx context.Context, svc *license.Service, st *store.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Quiet logger; this is an interactive tool
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open license store: %w", err)
	}
	defer st.Close()

	if err := st.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	signer := license.NewSigner(cfg.License.SecretKey)
	issuer := license.NewIssuer(signer, license.Defaults{
		LatestVersion:  cfg.License.LatestVersion,
		MinimumVersion: cfg.License.MinimumVersion,
		DownloadURL:    cfg.License.DefaultDownloadURL,
	}, nil)
	svc := license.NewService(st, issuer, cfg.License.TrialDurationDays, nil, logger)

	ctx := infrastructure.EnsureTraceID(context.Background())
	return fn(ctx, svc, st)
}
