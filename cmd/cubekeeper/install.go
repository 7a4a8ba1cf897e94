package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
)

func newInstallCmd(a *app) *cobra.Command {
	var archive string

	cmd := &cobra.Command{
		Use:   "install [binary|server|both]",
		Short: "Download and install the server binary, its data, or both",
		Long: `Downloads the Cuberite binary for this device's ABI and/or the server
data archive, verifies their SHA-1 checksums and extracts them.

With --archive, installs a local zip instead of downloading; the target
must then be binary or server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := binary.TargetBoth
			if len(args) == 1 {
				t, err := binary.ParseTarget(args[0])
				if err != nil {
					return err
				}
				target = t
			}

			var kind binary.Kind
			if archive != "" {
				k, err := archiveKind(target)
				if err != nil {
					return err
				}
				kind = k
			}

			done := printInstallEvents(a.svc.State(), cmd.OutOrStdout())
			var err error
			if archive != "" {
				err = a.svc.InstallLocal(cmd.Context(), archive, kind)
			} else {
				err = a.svc.Install(cmd.Context(), target)
			}
			<-done
			if err != nil {
				return fmt.Errorf("install failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", a.svc.InstallState())
			return nil
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "install from a local zip archive")
	return cmd
}

func archiveKind(target binary.Target) (binary.Kind, error) {
	switch target {
	case binary.TargetBinary:
		return binary.KindBinary, nil
	case binary.TargetServer:
		return binary.KindServer, nil
	default:
		return 0, fmt.Errorf("--archive needs a target of binary or server, not %s", target)
	}
}

// printInstallEvents prints phases and the install result. The returned
// channel closes after the result, which every install operation
// publishes exactly once.
func printInstallEvents(st *state.ServiceState, out io.Writer) <-chan struct{} {
	sub := st.SubscribeInstall()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()

		lastPct := int64(-1)
		for ev := range sub.C {
			switch ev.Type {
			case state.EventPhaseStart:
				fmt.Fprintf(out, "%s...\n", ev.Title)
				lastPct = -1
			case state.EventProgress:
				if ev.Max <= 0 {
					continue
				}
				// Report in 25% steps.
				if pct := ev.Current * 100 / ev.Max / 25 * 25; pct > lastPct {
					lastPct = pct
					fmt.Fprintf(out, "  %d%%\n", pct)
				}
			case state.EventResult:
				fmt.Fprintln(out, ev.Message)
				return
			}
		}
	}()
	return done
}
