package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ExtensionManifest) DeepCopyInto(out *ExtensionManifest) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	out.Status = in.Status
}

// DeepCopy copies the receiver, creating a new ExtensionManifest.
func (in *ExtensionManifest) DeepCopy() *ExtensionManifest {
	if in == nil {
		return nil
	}
	out := new(ExtensionManifest)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject copies the receiver, creating a new runtime.Object.
func (in *ExtensionManifest) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ExtensionManifestList) DeepCopyInto(out *ExtensionManifestList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]ExtensionManifest, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy copies the receiver, creating a new ExtensionManifestList.
func (in *ExtensionManifestList) DeepCopy() *ExtensionManifestList {
	if in == nil {
		return nil
	}
	out := new(ExtensionManifestList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject copies the receiver, creating a new runtime.Object.
func (in *ExtensionManifestList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ExtensionManifestSpec) DeepCopyInto(out *ExtensionManifestSpec) {
	*out = *in
	if in.Dependencies != nil {
		out.Dependencies = make([]ExtensionDependency, len(in.Dependencies))
		copy(out.Dependencies, in.Dependencies)
	}
	if in.Metadata != nil {
		out.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			out.Metadata[k] = v
		}
	}
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ExtensionInstall) DeepCopyInto(out *ExtensionInstall) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy copies the receiver, creating a new ExtensionInstall.
func (in *ExtensionInstall) DeepCopy() *ExtensionInstall {
	if in == nil {
		return nil
	}
	out := new(ExtensionInstall)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject copies the receiver, creating a new runtime.Object.
func (in *ExtensionInstall) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ExtensionInstallList) DeepCopyInto(out *ExtensionInstallList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]ExtensionInstall, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy copies the receiver, creating a new ExtensionInstallList.
func (in *ExtensionInstallList) DeepCopy() *ExtensionInstallList {
	if in == nil {
		return nil
	}
	out := new(ExtensionInstallList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject copies the receiver, creating a new runtime.Object.
func (in *ExtensionInstallList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ExtensionInstallStatus) DeepCopyInto(out *ExtensionInstallStatus) {
	*out = *in
	out.InstallOrder = copyStrings(in.InstallOrder)
	out.Installed = copyStrings(in.Installed)
	out.AlreadyInstalled = copyStrings(in.AlreadyInstalled)
	out.RolledBack = copyStrings(in.RolledBack)
	out.Warnings = copyStrings(in.Warnings)
	if in.Errors != nil {
		out.Errors = make([]InstallError, len(in.Errors))
		copy(out.Errors, in.Errors)
	}
	if in.LastAttemptTime != nil {
		in, out := &in.LastAttemptTime, &out.LastAttemptTime
		*out = (*in).DeepCopy()
	}
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
