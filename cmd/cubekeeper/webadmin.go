package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newWebAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webadmin",
		Short: "Configure the server's web interface",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print the web interface address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := a.svc.WebAdminURL(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-port PORT",
		Short: "Change the web interface port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[0])
			}
			f, err := a.svc.WebAdmin()
			if err != nil {
				return err
			}
			if err := f.SetPort(port); err != nil {
				return err
			}
			return f.Save()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-login USER PASSWORD",
		Short: "Replace the web interface login",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.svc.WebAdmin()
			if err != nil {
				return err
			}
			old, _ := f.Login()
			if err := f.SetLogin(old.Name, args[0], args[1]); err != nil {
				return err
			}
			if err := f.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "web interface login set to %s\n", args[0])
			return nil
		},
	})

	var enable bool
	enableCmd := &cobra.Command{
		Use:   "enable",
		Short: "Turn the web interface on or off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.svc.WebAdmin()
			if err != nil {
				return err
			}
			f.SetEnabled(enable)
			return f.Save()
		},
	}
	enableCmd.Flags().BoolVar(&enable, "on", true, "enable (--on=false disables)")
	cmd.AddCommand(enableCmd)

	return cmd
}
