package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"licensed/internal/license"
	"licensed/internal/store"
)

func newLicenseCommand() *cobra.Command {
	licenseCmd := &cobra.Command{
		Use:   "license",
		Short: "Manage licenses",
	}

	licenseCmd.AddCommand(newLicenseCreateCommand())
	licenseCmd.AddCommand(newLicenseDeleteCommand())

	return licenseCmd
}

func newLicenseCreateCommand() *cobra.Command {
	var (
		licenseKey string
		trialDays  int
		maxDevices int
		notes      string
	)

	cmd := &cobra.Command{
		Use:       "create {trial|pro}",
		Short:     "Create a license",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(store.UserTypeTrial), string(store.UserTypePro)},
		RunE: func(cmd *cobra.Command, args []string) error {
			userType := store.UserType(args[0])
			if userType != store.UserTypeTrial && userType != store.UserTypePro {
				return fmt.Errorf("unsupported license type %q", args[0])
			}

			return withService(func(ctx context.Context, svc *license.Service, _ *store.Store) error {
				lic, err := svc.CreateLicense(ctx, license.CreateLicenseParams{
					LicenseKey: licenseKey,
					UserType:   userType,
					TrialDays:  trialDays,
					MaxDevices: maxDevices,
					Notes:      notes,
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "created %s license %s (max devices %d)\n",
					lic.UserType, lic.LicenseKey, lic.MaxDevices)
				if lic.ExpireAt != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "expires %s\n", lic.ExpireAt.UTC().Format("2006-01-02"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&licenseKey, "key", "", "custom license key (minted when empty)")
	cmd.Flags().IntVar(&trialDays, "trial-days", 0, "trial duration in days (trial licenses only)")
	cmd.Flags().IntVar(&maxDevices, "max-devices", 1, "device quota")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")

	return cmd
}

func newLicenseDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <license-key>",
		Short: "Delete a license and all of its activations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *license.Service, _ *store.Store) error {
				if err := svc.DeleteLicense(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted license %s\n", args[0])
				return nil
			})
		},
	}
}
