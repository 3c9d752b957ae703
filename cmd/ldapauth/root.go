package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOptions struct {
	configPath string
	viper      *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "ldapauth",
		Short: "Authenticate local accounts against an LDAP directory",
		Long: `ldapauth checks passwords against an LDAP or Active Directory server,
creating and synchronizing the matching local user record on success.

Settings come from ldapauth.yaml (or --config) and LDAPAUTH_* environment
variables, e.g. LDAPAUTH_LDAP_BIND_PASSWORD.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ./ldapauth.yaml)")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("metrics-textfile", "", "write Prometheus counters to this file on exit")

	_ = opts.viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.viper.BindPFlag("log.json", flags.Lookup("log-json"))
	_ = opts.viper.BindPFlag("metrics.textfile", flags.Lookup("metrics-textfile"))

	cmd.AddCommand(
		newAuthenticateCmd(opts),
		newResetPasswordCmd(opts),
		newGroupsCmd(opts),
		newDNCmd(opts),
		newAttributeCmd(opts),
		newMigrateCmd(opts),
		newPingCmd(opts),
	)

	return cmd
}
