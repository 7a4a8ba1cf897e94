package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/service"
)

// notifySignals routes the interrupts that stop a foreground run to c.
var notifySignals = func(c chan<- os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(a *app) *cobra.Command {
	var killOrphans bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the server in the foreground",
		Long: `Starts the server and streams its console. Lines typed on stdin are sent
as console commands. The first interrupt sends "stop", the second kills
the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, killOrphans)
		},
	}
	cmd.Flags().BoolVar(&killOrphans, "kill-orphans", false, "kill a server left running by a crashed cubekeeper")
	return cmd
}

func (a *app) run(cmd *cobra.Command, killOrphans bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	orphan, err := a.svc.Reconcile(ctx, killOrphans)
	if err != nil {
		return err
	}
	if orphan != nil && orphan.Alive && !orphan.Killed {
		fmt.Fprintf(out, "warning: a server from an earlier session is still running (pid %d)\n", orphan.Lock.ChildPID)
	}

	if a.cfg.Metrics.Listen != "" {
		stop := a.serveMetrics()
		defer stop()
	}

	lines := a.svc.State().SubscribeLog()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range lines.C {
			fmt.Fprintln(out, line)
		}
	}()

	// Interrupts during startup queue up here instead of killing the host.
	sigs := make(chan os.Signal, 2)
	notifySignals(sigs)
	defer signal.Stop(sigs)

	if err := a.svc.Start(ctx); err != nil {
		lines.Close()
		<-printed
		if errors.Is(err, service.ErrNotInstalled) {
			return fmt.Errorf("%w: run 'cubekeeper install' first", err)
		}
		return err
	}

	go a.forwardStdin(ctx)

	finished := make(chan struct{})
	defer close(finished)
	go a.handleSignals(sigs, finished)

	res, err := a.svc.Wait(ctx)
	if err != nil {
		return err
	}

	// Closing the service lets the printer drain every queued line.
	a.svc.Close()
	<-printed

	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintf(out, "server stopped after %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

// handleSignals stops the server on the first interrupt and kills it on
// the second.
func (a *app) handleSignals(sigs <-chan os.Signal, finished <-chan struct{}) {
	interrupts := 0
	for {
		select {
		case <-finished:
			return
		case <-sigs:
		}
		interrupts++
		if interrupts == 1 {
			a.logger.Info("stopping server")
			if err := a.svc.Stop(context.Background()); err != nil {
				a.logger.Warn("stop server", "error", err)
			}
			continue
		}
		a.logger.Warn("killing server")
		if err := a.svc.Kill(); err != nil {
			a.logger.Warn("kill server", "error", err)
		}
	}
}

// forwardStdin sends every stdin line to the server console. The read
// cannot be interrupted, so the goroutine ends with the process.
func (a *app) forwardStdin(ctx context.Context) {
	scanner := bufio.NewScanner(a.stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := a.svc.Send(ctx, line); err != nil {
			return
		}
	}
}

func (a *app) serveMetrics() func() {
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint", "addr", srv.Addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", srv.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
