package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newStateCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show what is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			p := a.svc.Platform()
			fmt.Fprintf(out, "platform:     %s/%s (abi %s)\n", p.OS, p.Arch, p.ABI)
			fmt.Fprintf(out, "install root: %s\n", a.cfg.InstallRoot)
			fmt.Fprintf(out, "server dir:   %s\n", a.cfg.ServerDir)
			fmt.Fprintf(out, "state:        %s\n", a.svc.RefreshInstallState())
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			states := a.svc.State().SubscribeInstallState()
			defer states.Close()
			errc := make(chan error, 1)
			go func() { errc <- a.svc.Watch(ctx) }()

			for {
				select {
				case is := <-states.C:
					fmt.Fprintf(out, "state:        %s\n", is)
				case err := <-errc:
					return err
				}
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep printing the state as it changes")
	return cmd
}
