package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/harness"
	"github.com/loykin/harness/internal/logger"
)

const (
	shutdownTimeout = 5 * time.Second
	// conventional status for a command ended by SIGINT
	interruptedExitCode = 130
)

// starter is the part of *harness.Supervisor the start path needs.
type starter interface {
	StartIfNeeded(ep harness.Endpoint, wait time.Duration) (harness.Outcome, error)
	StopIfStarted()
}

// startUnlessAborted runs StartIfNeeded. The readiness wait is not interruptible,
// so aborted is checked once it returns; a server started for an aborted command
// is stopped again.
func startUnlessAborted(sup starter, ep harness.Endpoint, wait time.Duration, log *slog.Logger, aborted func() bool) (bool, error) {
	if _, err := sup.StartIfNeeded(ep, wait); err != nil {
		return false, err
	}
	if !aborted() {
		return false, nil
	}
	log.Info("Interrupted while waiting for the server; stopping it")
	sup.StopIfStarted()
	return true, nil
}

// command implements the subcommands on top of the harness facade
type command struct {
	flags *GlobalFlags
}

func (c command) load(cmd *cobra.Command) (*harness.Config, *slog.Logger, error) {
	cfg, err := harness.LoadConfig(c.flags.Root)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cmd.ErrOrStderr(), cfg.Logging()), nil
}

func (c command) wait(cfg *harness.Config) (time.Duration, error) {
	if c.flags.Wait > 0 {
		return c.flags.Wait, nil
	}
	return cfg.StartTimeout()
}

// supervise loads configuration and builds a supervisor for the configured endpoint.
func (c command) supervise(cmd *cobra.Command) (*harness.Supervisor, harness.Endpoint, time.Duration, *slog.Logger, func(), error) {
	cfg, log, err := c.load(cmd)
	if err != nil {
		return nil, harness.Endpoint{}, 0, nil, nil, err
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		return nil, harness.Endpoint{}, 0, nil, nil, err
	}
	wait, err := c.wait(cfg)
	if err != nil {
		return nil, harness.Endpoint{}, 0, nil, nil, err
	}
	sup, sinks, err := harness.FromConfig(cfg, log)
	if err != nil {
		return nil, harness.Endpoint{}, 0, nil, nil, err
	}
	closeFn := func() {
		if err := harness.CloseHistory(sinks); err != nil {
			log.Warn("Failed to close history sinks", "error", err)
		}
	}
	return sup, ep, wait, log, closeFn, nil
}

// Run starts the server if needed, runs the user's command and stops the server
// if it was started here.
func (c command) Run(cmd *cobra.Command, f RunFlags) error {
	sup, ep, wait, log, closeFn, err := c.supervise(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	// subscribe before starting so Ctrl-C during the readiness wait cannot
	// leave an orphaned server behind
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	aborted, err := startUnlessAborted(sup, ep, wait, log, func() bool {
		select {
		case <-sigs:
			return true
		default:
			return false
		}
	})
	if err != nil {
		return err
	}
	if aborted {
		return &exitCodeError{code: interruptedExitCode}
	}
	if !f.KeepServer {
		defer sup.StopIfStarted()
	}

	// #nosec G204 -- the operator's own command line
	child := exec.Command(f.Args[0], f.Args[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = append(os.Environ(), "APPIUM_SERVER_URL="+ep.URL())
	if err := child.Start(); err != nil {
		return fmt.Errorf("start %s: %w", f.Args[0], err)
	}

	// keep running on Ctrl-C so the server can be stopped; the child decides
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case s := <-sigs:
				log.Info("Forwarding signal to command", "signal", s)
				_ = child.Process.Signal(s)
			case <-done:
				return
			}
		}
	}()

	err = child.Wait()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if code <= 0 {
			code = 1
		}
		return &exitCodeError{code: code}
	}
	return err
}

// Serve keeps the server available behind the HTTP API until interrupted.
func (c command) Serve(cmd *cobra.Command, f ServeFlags) error {
	sup, ep, wait, log, closeFn, err := c.supervise(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if f.Metrics {
		if err := harness.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the API serializes supervisor calls; the final stop waits for an in-flight /start
	api := harness.NewAPI(f.APIBase, sup, ep, wait, f.Metrics)
	defer api.Stop()
	if !f.NoStart {
		aborted, err := startUnlessAborted(sup, ep, wait, log, func() bool { return ctx.Err() != nil })
		if err != nil || aborted {
			return err
		}
	}

	srv, err := harness.ServeAPI(f.Listen, api)
	if err != nil {
		return fmt.Errorf("listen %s: %w", f.Listen, err)
	}
	log.Info("Serving harness API", "addr", srv.Addr, "base", f.APIBase, "server", ep.URL())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "listening on "+srv.Addr)

	<-ctx.Done()

	log.Info("Shutting down harness API")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	return nil
}

// Probe prints whether the endpoint is reachable and fails when it is not.
func (c command) Probe(cmd *cobra.Command) error {
	cfg, _, err := c.load(cmd)
	if err != nil {
		return err
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		return err
	}
	if harness.IsReachable(ep) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), ep.URL()+" reachable")
		return nil
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), ep.URL()+" unreachable")
	return &exitCodeError{code: 1}
}

func (c command) URL(cmd *cobra.Command) error {
	cfg, _, err := c.load(cmd)
	if err != nil {
		return err
	}
	u, err := cfg.ServerURL()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), u)
	return nil
}

func (c command) Caps(cmd *cobra.Command) error {
	cfg, log, err := c.load(cmd)
	if err != nil {
		return err
	}
	caps, err := harness.LoadCaps(cfg, log)
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), caps)
	return nil
}

func (c command) User(cmd *cobra.Command, f UserFlags) error {
	cfg, _, err := c.load(cmd)
	if err != nil {
		return err
	}
	store, err := harness.LoadUsers(cfg)
	if err != nil {
		return err
	}
	cred, err := store.Get(f.Profile)
	if err != nil {
		return err
	}
	if !f.ShowPassword {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), cred.Username)
		return nil
	}
	printJSON(cmd.OutOrStdout(), map[string]string{"username": cred.Username, "password": cred.Password})
	return nil
}

func (c command) Users(cmd *cobra.Command) error {
	cfg, _, err := c.load(cmd)
	if err != nil {
		return err
	}
	store, err := harness.LoadUsers(cfg)
	if err != nil {
		return err
	}
	for _, p := range store.Profiles() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
