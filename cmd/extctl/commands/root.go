// Package commands provides the CLI commands for the extctl tool.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/agent"
	"github.com/bayleafwalker/bindery-extensions/internal/registry"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

// errFailed is returned after a failure report has been printed, so the
// process exits non-zero without printing the failure twice.
var errFailed = errors.New("failed")

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(extv1alpha1.AddToScheme(scheme))
}

type options struct {
	registryDir string
	output      string
	concurrency int
	verbose     bool

	kubeconfig string
	namespace  string

	// Tests replace these with a fake client and an in-memory agent.
	newClient func(kubeconfig string) (client.Client, error)
	dialAgent func(address string) (*agent.Client, error)
}

func defaultKubeconfig() string {
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	if home := homedir.HomeDir(); home != "" {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}

func newClusterClient(kubeconfig string) (client.Client, error) {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("building kubeconfig: %w", err)
	}
	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	return c, nil
}

// NewRootCommand builds the extctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{newClient: newClusterClient, dialAgent: dialAgent})
}

func newRootCommand(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "extctl",
		Short: "Resolve, validate and install extensions",
		Long: `extctl works against a directory of extension manifests (one YAML or
JSON file per extension version) or against the ExtensionManifest and
ExtensionInstall resources of a cluster.

Usage:
  extctl resolve ui 1.2.0            Print the install order for ui@1.2.0
  extctl validate                    Resolve every published manifest
  extctl suggest core "^1.0.0"       List versions satisfying the constraints
  extctl install ui 1.2.0 --agent localhost:50061
  extctl publish -n extensions       Apply the manifest directory to a cluster
  extctl request ui 1.2.0 --wait     Create an ExtensionInstall and wait for it`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch o.output {
			case outputText, outputYAML, outputJSON:
			default:
				return fmt.Errorf("unknown output format %q (want text, yaml or json)", o.output)
			}
			logger := zap.New(zap.WriteTo(cmd.ErrOrStderr()), zap.UseDevMode(o.verbose))
			cmd.SetContext(logr.NewContext(cmd.Context(), logger))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.registryDir, "registry-dir", ".", "directory of extension manifests")
	flags.StringVarP(&o.output, "output", "o", outputText, "output format: text, yaml or json")
	flags.IntVar(&o.concurrency, "concurrency", 0, "parallel registry lookups per resolution level (0 uses the default)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "log resolution steps to stderr")
	flags.StringVar(&o.kubeconfig, "kubeconfig", defaultKubeconfig(), "path to the kubeconfig file")
	flags.StringVarP(&o.namespace, "namespace", "n", "default", "namespace of the extension resources")

	root.AddCommand(
		newResolveCommand(o),
		newValidateCommand(o),
		newSuggestCommand(o),
		newInstallCommand(o),
		newPublishCommand(o),
		newRequestCommand(o),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func (o *options) loadRegistry() (*registry.Memory, error) {
	reg, err := registry.LoadDir(o.registryDir)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	return reg, nil
}

func (o *options) resolver(reg resolver.Registry) *resolver.DefaultResolver {
	var opts []resolver.Option
	if o.concurrency > 0 {
		opts = append(opts, resolver.WithConcurrency(o.concurrency))
	}
	return resolver.NewDefault(reg, opts...)
}
