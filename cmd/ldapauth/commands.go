package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/isometry/ldapauth/internal/auth"
)

func newAuthenticateCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "authenticate <login>",
		Short: "Check a password, provisioning and synchronizing the local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needAuthenticator, func(a *app) error {
				pw, err := passwordValue(cmd.ErrOrStderr(), password, cmd.Flags().Changed("password"), "Password: ")
				if err != nil {
					return err
				}

				rec, err := a.auth.Authenticate(ctx, map[string]string{
					a.cfg.Auth.AuthenticationKey: args[0],
					auth.PasswordAttribute:       pw,
				})
				if err != nil {
					return err
				}
				if rec == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "authentication failed")
					return errRejected
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted for when omitted)")

	return cmd
}

func newResetPasswordCmd(opts *rootOptions) *cobra.Command {
	var newPassword, confirmation string

	cmd := &cobra.Command{
		Use:   "reset-password <login>",
		Short: "Set a new password locally and, when enabled, in the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needAuthenticator, func(a *app) error {
				rec, err := a.findUser(ctx, args[0])
				if err != nil {
					return err
				}

				flags := cmd.Flags()
				pw, err := passwordValue(cmd.ErrOrStderr(), newPassword, flags.Changed("new-password"), "New password: ")
				if err != nil {
					return err
				}
				confirm := pw
				if flags.Changed("confirmation") || !flags.Changed("new-password") {
					if confirm, err = passwordValue(cmd.ErrOrStderr(), confirmation, flags.Changed("confirmation"), "Confirm password: "); err != nil {
						return err
					}
				}

				ok, err := a.auth.ResetPassword(ctx, rec, pw, confirm)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "password was not changed: the account failed validation")
					return errRejected
				}
				fmt.Fprintln(cmd.OutOrStdout(), "password changed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password (prompted for when omitted)")
	cmd.Flags().StringVar(&confirmation, "confirmation", "", "new password confirmation (defaults to --new-password)")

	return cmd
}

func newGroupsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups <login>",
		Short: "List the directory groups of a local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needAuthenticator, func(a *app) error {
				rec, err := a.findUser(ctx, args[0])
				if err != nil {
					return err
				}
				groups, err := a.auth.Groups(ctx, rec)
				if err != nil {
					return err
				}
				for _, group := range groups {
					fmt.Fprintln(cmd.OutOrStdout(), group)
				}
				return nil
			})
		},
	}
}

func newDNCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dn <login>",
		Short: "Print the directory DN of a local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needAuthenticator, func(a *app) error {
				rec, err := a.findUser(ctx, args[0])
				if err != nil {
					return err
				}
				dn, err := a.auth.DN(ctx, rec)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dn)
				return nil
			})
		},
	}
}

func newAttributeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attribute <login> <name>",
		Short: "Print one directory attribute of a login",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needAuthenticator, func(a *app) error {
				values, err := a.auth.Param(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if values == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s has no %s attribute\n", args[0], args[1])
					return errRejected
				}
				for _, v := range values {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return nil
			})
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the local user table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needStore, func(a *app) error {
				return a.users.AutoMigrate(ctx)
			})
		},
	}
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the directory is reachable with the service account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, needDirectory, func(a *app) error {
				if err := a.client.Ping(ctx); err != nil {
					return err
				}
				stats := a.client.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "ok (%d connections: %d active, %d idle; %d created, %d errors; up %s)\n",
					stats.Total, stats.Active, stats.Idle, stats.Created, stats.Errors, stats.Uptime.Round(time.Millisecond))
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
