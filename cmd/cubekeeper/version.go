package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cubekeeper: %s\n", Version)
			info, ok := debug.ReadBuildInfo()
			if !ok {
				return
			}
			fmt.Fprintf(out, "go:         %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit:     %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:       %s\n", s.Value)
				}
			}
		},
	}
}
