package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bayleafwalker/bindery-extensions/internal/agent"
	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

func newInstallCommand(o *options) *cobra.Command {
	var agentAddr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "install <extension-id> <version>",
		Short: "Install an extension and its dependencies through an install agent",
		Long: `Resolve an extension against the manifest directory and install the
resulting chain, dependencies first, through the install agent at --agent.
When one install fails every extension installed before it is uninstalled
again, newest first.

Without --agent the chain is installed into an in-memory target and the
command only reports what would happen.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := o.loadRegistry()
			if err != nil {
				return err
			}

			var target installer.Target = installer.NewMemoryTarget()
			dryRun := agentAddr == ""
			if !dryRun {
				c, err := o.dialAgent(agentAddr)
				if err != nil {
					return err
				}
				defer c.Close()
				target = c
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			ref := manifest.Ref{ID: args[0], Version: args[1]}
			res, err := installer.New(o.resolver(reg), target).InstallDependencyChain(ctx, ref.ID, ref.Version)
			if err != nil {
				return err
			}
			report := newInstallReport(ref, res, dryRun)
			if err := render(cmd.OutOrStdout(), o.output, report, report.text); err != nil {
				return err
			}
			if !res.Success {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentAddr, "agent", "", "address of the install agent (host:port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for resolution and installs; 0 disables it")
	return cmd
}

func dialAgent(address string) (*agent.Client, error) {
	return agent.Dial(address)
}
