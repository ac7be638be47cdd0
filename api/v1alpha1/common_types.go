package v1alpha1

type DependencyMode string

const (
	DependencyModeRequired DependencyMode = "required"
	DependencyModeOptional DependencyMode = "optional"
)

type ExtensionManifestPhase string

const (
	ExtensionManifestPhaseAvailable ExtensionManifestPhase = "Available"
	ExtensionManifestPhaseInstalled ExtensionManifestPhase = "Installed"
)

type ExtensionInstallPhase string

const (
	ExtensionInstallPhaseResolving ExtensionInstallPhase = "Resolving"
	ExtensionInstallPhaseInstalled ExtensionInstallPhase = "Installed"
	ExtensionInstallPhaseFailed    ExtensionInstallPhase = "Failed"
)

// IsTerminal reports whether no further reconcile is needed for the observed generation.
func (p ExtensionInstallPhase) IsTerminal() bool {
	return p == ExtensionInstallPhaseInstalled || p == ExtensionInstallPhaseFailed
}

// ExtensionRef names an extension at a concrete version.
type ExtensionRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}
