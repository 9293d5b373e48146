package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/harness/pkg/client"
)

// RemoteFlags holds flags for the remote subcommands
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func (f RemoteFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
}

// createRemoteCommand groups commands that talk to a running `harness serve`
func createRemoteCommand(c command, f *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a server kept up by `harness serve`",
		Long: `Examples:
  harness remote status --api-url=http://ci-host:8080/api
  harness remote start
  harness remote stop`,
	}
	cmd.PersistentFlags().StringVar(&f.APIUrl, "api-url", client.DefaultConfig().BaseURL, "harness API URL")
	cmd.PersistentFlags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show supervisor status and endpoint reachability",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := f.client().Status(cmd.Context())
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), st)
				return nil
			},
		},
		&cobra.Command{
			Use:   "start",
			Short: "Start the server if it is not reachable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := f.client().Start(cmd.Context(), c.flags.Wait)
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), res)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the server if the API started it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return f.client().Stop(cmd.Context())
			},
		},
	)
	return cmd
}
