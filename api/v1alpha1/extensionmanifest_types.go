package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ExtensionManifest publishes one extension version and the dependencies it declares.
//
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=extm
// +kubebuilder:printcolumn:name="Extension",type=string,JSONPath=`.spec.extension.id`
// +kubebuilder:printcolumn:name="Version",type=string,JSONPath=`.spec.extension.version`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
type ExtensionManifest struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ExtensionManifestSpec   `json:"spec"`
	Status ExtensionManifestStatus `json:"status,omitempty"`
}

type ExtensionManifestSpec struct {
	Extension    ExtensionRef          `json:"extension"`
	Dependencies []ExtensionDependency `json:"dependencies,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
}

type ExtensionDependency struct {
	ExtensionID string `json:"extensionId"`
	// VersionConstraint is an exact version, a caret or tilde constraint,
	// or a comparator range such as ">=1.0.0 <2.0.0".
	VersionConstraint string `json:"versionConstraint"`
	// +kubebuilder:validation:Enum=required;optional
	// +kubebuilder:default=required
	DependencyMode DependencyMode `json:"dependencyMode,omitempty"`
}

type ExtensionManifestStatus struct {
	Phase ExtensionManifestPhase `json:"phase,omitempty"`
	// InstalledBy names the ExtensionInstall that installed this version.
	InstalledBy string `json:"installedBy,omitempty"`
	Message     string `json:"message,omitempty"`
}

// +kubebuilder:object:root=true
type ExtensionManifestList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ExtensionManifest `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ExtensionManifest{}, &ExtensionManifestList{})
}
