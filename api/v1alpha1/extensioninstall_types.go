package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ExtensionInstall requests that an extension and its dependency chain be installed.
//
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=exti
// +kubebuilder:printcolumn:name="Extension",type=string,JSONPath=`.spec.extensionId`
// +kubebuilder:printcolumn:name="Version",type=string,JSONPath=`.spec.version`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
type ExtensionInstall struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ExtensionInstallSpec   `json:"spec"`
	Status ExtensionInstallStatus `json:"status,omitempty"`
}

type ExtensionInstallSpec struct {
	ExtensionID string `json:"extensionId"`
	Version     string `json:"version"`
}

type ExtensionInstallStatus struct {
	Phase   ExtensionInstallPhase `json:"phase,omitempty"`
	Message string                `json:"message,omitempty"`

	InstallOrder     []string `json:"installOrder,omitempty"`
	Installed        []string `json:"installed,omitempty"`
	// AlreadyInstalled lists extensions of installOrder that were present
	// before this install ran and are left alone on rollback.
	AlreadyInstalled []string `json:"alreadyInstalled,omitempty"`
	RolledBack       []string `json:"rolledBack,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`

	Errors []InstallError `json:"errors,omitempty"`

	ObservedGeneration int64        `json:"observedGeneration,omitempty"`
	LastAttemptTime    *metav1.Time `json:"lastAttemptTime,omitempty"`

	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// InstallError is one failure reported by resolution or installation.
type InstallError struct {
	Kind         string `json:"kind"`
	ExtensionID  string `json:"extensionId,omitempty"`
	DependencyID string `json:"dependencyId,omitempty"`
	Message      string `json:"message"`
}

// +kubebuilder:object:root=true
type ExtensionInstallList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ExtensionInstall `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ExtensionInstall{}, &ExtensionInstallList{})
}
