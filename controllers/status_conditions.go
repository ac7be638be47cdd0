package controllers

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

const (
	InstallConditionResolved  = "Resolved"
	InstallConditionInstalled = "Installed"
)

func setInstallCondition(install *extv1alpha1.ExtensionInstall, condition metav1.Condition) {
	if install == nil {
		return
	}
	condition.ObservedGeneration = install.Generation
	meta.SetStatusCondition(&install.Status.Conditions, condition)
}

// summarizeErrors renders at most four errors for condition and event messages.
func summarizeErrors(errs []resolver.Error) string {
	if len(errs) == 0 {
		return ""
	}
	limit := 4
	parts := make([]string, 0, min(len(errs), limit))
	for i := 0; i < len(errs) && i < limit; i++ {
		parts = append(parts, errs[i].Error())
	}
	if len(errs) > limit {
		parts = append(parts, fmt.Sprintf("...and %d more", len(errs)-limit))
	}
	return strings.Join(parts, "; ")
}
