package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	serveFlags := &ServeFlags{}
	userFlags := &UserFlags{}
	remoteFlags := &RemoteFlags{}

	cmd := command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(cmd, runFlags),
		createServeCommand(cmd, serveFlags),
		createProbeCommand(cmd),
		createURLCommand(cmd),
		createCapsCommand(cmd),
		createUserCommand(cmd, userFlags),
		createUsersCommand(cmd),
		createRemoteCommand(cmd, remoteFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "harness",
		Short: "Appium server lifecycle helper for test suites",
		Long: `harness starts an Appium server for a test run only when none is already
listening, waits until it accepts connections and stops it again afterwards.
It also resolves the server URL, session capabilities and test users from the
project's file.env and configs/ directory.

Examples:
  harness run -- robot tests/            # start if needed, run, stop if started
  harness serve --listen :8080           # keep a server up behind an HTTP API
  harness url
  harness caps
  harness user standard_user
  harness remote status --api-url=http://ci-host:8080/api`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.Root, "root", ".", "project root holding file.env and configs/")
	root.PersistentFlags().DurationVar(&flags.Wait, "wait", 0, "readiness deadline (default APPIUM_START_TIMEOUT or 20s)")
	return root
}

func createRunCommand(c command, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command with an Appium server available",
		Long: `Start the server if the endpoint is not reachable, run the command with
APPIUM_SERVER_URL set, then stop the server if this invocation started it.
The exit code is the command's exit code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Args = args
			return c.Run(cmd, *f)
		},
	}
	cmd.Flags().BoolVar(&f.KeepServer, "keep-server", false, "leave a started server running after the command exits")
	return cmd
}

func createServeCommand(c command, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep a server up and expose status/start/stop over HTTP",
		Long: `Start the server if needed and serve:
  GET  {api-base}/status
  POST {api-base}/start?wait=20s
  POST {api-base}/stop
  GET  /metrics
SIGINT/SIGTERM stops the HTTP API and the server if it was started here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(cmd, *f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&f.APIBase, "api-base", "/api", "base path of the HTTP API")
	cmd.Flags().BoolVar(&f.Metrics, "metrics", true, "expose prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&f.NoStart, "no-start", false, "do not start the server at boot")
	return cmd
}

func createProbeCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report whether the server endpoint accepts connections",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Probe(cmd) },
	}
}

func createURLCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the server URL",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.URL(cmd) },
	}
}

func createCapsCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Print merged device and app capabilities as JSON",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Caps(cmd) },
	}
}

func createUserCommand(c command, f *UserFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user <profile>",
		Short: "Print the credentials of a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Profile = args[0]
			return c.User(cmd, *f)
		},
	}
	cmd.Flags().BoolVar(&f.ShowPassword, "show-password", false, "include the password in the output")
	return cmd
}

func createUsersCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List user profiles",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Users(cmd) },
	}
}
