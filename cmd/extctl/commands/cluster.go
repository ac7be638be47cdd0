package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/controllers"
)

func newPublishCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Create or update an ExtensionManifest for every manifest in the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := o.loadRegistry()
			if err != nil {
				return err
			}
			c, err := o.newClient(o.kubeconfig)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := logr.FromContextOrDiscard(ctx)

			for _, id := range reg.IDs() {
				versions, err := reg.ListVersions(ctx, id)
				if err != nil {
					return err
				}
				for _, v := range versions {
					m, err := reg.GetManifest(ctx, id, v)
					if err != nil {
						return err
					}
					desired := controllers.NewManifestObject(m, o.namespace)
					obj := &extv1alpha1.ExtensionManifest{ObjectMeta: metav1.ObjectMeta{Name: desired.Name, Namespace: desired.Namespace}}
					op, err := controllerutil.CreateOrUpdate(ctx, c, obj, func() error {
						obj.Spec = desired.Spec
						return nil
					})
					if err != nil {
						return fmt.Errorf("publishing %s@%s: %w", id, v, err)
					}
					logger.V(1).Info("published manifest", "name", obj.Name, "operation", op)
					fmt.Fprintf(cmd.OutOrStdout(), "extensionmanifest/%s %s\n", obj.Name, op)
				}
			}
			return nil
		},
	}
}

func newRequestCommand(o *options) *cobra.Command {
	var name string
	var waitFor bool
	var timeout time.Duration
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "request <extension-id> <version>",
		Short: "Create an ExtensionInstall for the operator to reconcile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.newClient(o.kubeconfig)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if name == "" {
				name = controllers.ManifestObjectName(args[0], args[1])
			}
			install := &extv1alpha1.ExtensionInstall{
				ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: o.namespace},
				Spec:       extv1alpha1.ExtensionInstallSpec{ExtensionID: args[0], Version: args[1]},
			}
			if err := c.Create(ctx, install); err != nil {
				return fmt.Errorf("creating extensioninstall %s: %w", name, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "extensioninstall/%s created\n", name)
			if !waitFor {
				return nil
			}

			if err := waitForTerminal(ctx, c, client.ObjectKeyFromObject(install), interval, timeout, install); err != nil {
				return fmt.Errorf("waiting for extensioninstall %s: %w", name, err)
			}
			status := install.Status
			if err := render(cmd.OutOrStdout(), o.output, status, func(w io.Writer) error {
				return writeInstallStatus(w, name, status)
			}); err != nil {
				return err
			}
			if status.Phase != extv1alpha1.ExtensionInstallPhaseInstalled {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the ExtensionInstall (defaults to <id>-<version>)")
	cmd.Flags().BoolVar(&waitFor, "wait", false, "wait until the install is Installed or Failed")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long --wait waits")
	cmd.Flags().DurationVar(&interval, "poll-interval", time.Second, "how often --wait polls")
	return cmd
}

// waitForTerminal polls key into out until its current generation has been
// reconciled to a terminal phase.
func waitForTerminal(ctx context.Context, c client.Client, key client.ObjectKey, interval, timeout time.Duration, out *extv1alpha1.ExtensionInstall) error {
	return wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		if err := c.Get(ctx, key, out); err != nil {
			return false, client.IgnoreNotFound(err)
		}
		return out.Status.ObservedGeneration == out.Generation && out.Status.Phase.IsTerminal(), nil
	})
}

func writeInstallStatus(w io.Writer, name string, st extv1alpha1.ExtensionInstallStatus) error {
	fmt.Fprintf(w, "extensioninstall/%s %s", name, st.Phase)
	if st.Message != "" {
		fmt.Fprintf(w, ": %s", st.Message)
	}
	fmt.Fprintln(w)
	for _, e := range st.Errors {
		fmt.Fprintf(w, "error[%s]: %s\n", e.Kind, e.Message)
	}
	return nil
}
