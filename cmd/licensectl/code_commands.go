package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"licensed/internal/license"
	"licensed/internal/store"
)

func newCodeCommand() *cobra.Command {
	codeCmd := &cobra.Command{
		Use:   "code",
		Short: "Manage activation codes",
	}

	codeCmd.AddCommand(newCodeCreateCommand())
	codeCmd.AddCommand(newCodeRevokeCommand())

	return codeCmd
}

func newCodeCreateCommand() *cobra.Command {
	var (
		userType   string
		validDays  int
		maxDevices int
		usageLimit int
		expiresIn  time.Duration
		notes      string
	)

	cmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Create a redeemable activation code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ut := store.UserType(userType)
			if ut != store.UserTypeTrial && ut != store.UserTypePro {
				return fmt.Errorf("unsupported license type %q", userType)
			}

			params := license.CreateCodeParams{
				Code:       args[0],
				UserType:   ut,
				MaxDevices: maxDevices,
				Notes:      notes,
			}
			if validDays > 0 {
				params.ValidDays = &validDays
			}
			if usageLimit > 0 {
				params.UsageLimit = &usageLimit
			}
			if expiresIn > 0 {
				expiresAt := time.Now().UTC().Add(expiresIn)
				params.ExpiresAt = &expiresAt
			}

			return withService(func(ctx context.Context, svc *license.Service, _ *store.Store) error {
				ac, err := svc.CreateActivationCode(ctx, params)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "created code %s (%s, max devices %d)\n",
					ac.Code, ac.UserType, ac.MaxDevices)
				if ac.UsageLimit != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "usage limit %d\n", *ac.UsageLimit)
				}
				if ac.ExpiresAt != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "redeemable until %s\n", ac.ExpiresAt.UTC().Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userType, "type", string(store.UserTypePro), "license type granted on redemption (trial or pro)")
	cmd.Flags().IntVar(&validDays, "valid-days", 0, "license validity in days from redemption (0 = perpetual)")
	cmd.Flags().IntVar(&maxDevices, "max-devices", 3, "device quota granted on redemption")
	cmd.Flags().IntVar(&usageLimit, "usage-limit", 0, "maximum number of redemptions (0 = unlimited)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "window during which the code is redeemable (0 = no deadline)")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")

	return cmd
}

func newCodeRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <code>",
		Short: "Revoke an activation code",
		Long:  "Revoke an activation code so it can no longer be redeemed. Licenses already produced by the code are unaffected.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *license.Service, _ *store.Store) error {
				if err := svc.RevokeActivationCode(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked code %s\n", args[0])
				return nil
			})
		},
	}
}
