package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

const (
	outputText = "text"
	outputYAML = "yaml"
	outputJSON = "json"
)

type errorReport struct {
	Kind         string               `json:"kind"`
	ExtensionID  string               `json:"extensionId,omitempty"`
	DependencyID string               `json:"dependencyId,omitempty"`
	Message      string               `json:"message"`
	Cycle        string               `json:"cycle,omitempty"`
	Alternatives []resolver.Candidate `json:"alternatives,omitempty"`
}

type resolveReport struct {
	Extension manifest.Ref   `json:"extension"`
	Success   bool           `json:"success"`
	State     resolver.State `json:"state"`
	Plan      []manifest.Ref `json:"plan,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Errors    []errorReport  `json:"errors,omitempty"`
}

type installReport struct {
	Extension    manifest.Ref  `json:"extension"`
	Success      bool          `json:"success"`
	DryRun       bool          `json:"dryRun,omitempty"`
	InstallOrder []string      `json:"installOrder,omitempty"`
	Installed    []string      `json:"installed,omitempty"`
	Skipped      []string      `json:"alreadyInstalled,omitempty"`
	RolledBack   []string      `json:"rolledBack,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Errors       []errorReport `json:"errors,omitempty"`
}

func toErrorReports(errs []resolver.Error) []errorReport {
	if len(errs) == 0 {
		return nil
	}
	out := make([]errorReport, 0, len(errs))
	for _, e := range errs {
		r := errorReport{
			Kind:         string(e.Kind),
			ExtensionID:  e.ExtensionID,
			DependencyID: e.DependencyID,
			Message:      e.Message,
			Alternatives: e.Alternatives,
		}
		if e.Cause != nil {
			r.Message = fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		if e.Cycle != nil {
			r.Cycle = e.Cycle.String()
		}
		out = append(out, r)
	}
	return out
}

func newResolveReport(ref manifest.Ref, res resolver.ResolutionResult) resolveReport {
	return resolveReport{
		Extension: ref,
		Success:   res.Success,
		State:     res.State,
		Plan:      res.Plan(),
		Warnings:  res.Warnings,
		Errors:    toErrorReports(res.Errors),
	}
}

func newInstallReport(ref manifest.Ref, res installer.InstallationResult, dryRun bool) installReport {
	return installReport{
		Extension:    ref,
		Success:      res.Success,
		DryRun:       dryRun,
		InstallOrder: res.InstallOrder,
		Installed:    res.Installed,
		Skipped:      res.AlreadyInstalled,
		RolledBack:   res.RolledBack,
		Warnings:     res.Warnings,
		Errors:       toErrorReports(res.Errors),
	}
}

// render writes v as YAML or JSON, or calls text for the human format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return text(w)
	}
}

func writeErrors(w io.Writer, errs []errorReport) {
	for _, e := range errs {
		fmt.Fprintf(w, "error[%s]: %s\n", e.Kind, e.Message)
		if e.Cycle != "" {
			fmt.Fprintf(w, "  cycle: %s\n", e.Cycle)
		}
		if len(e.Alternatives) > 0 {
			versions := make([]string, 0, len(e.Alternatives))
			for _, a := range e.Alternatives {
				versions = append(versions, a.Version)
			}
			fmt.Fprintf(w, "  alternatives for %s: %s\n", e.DependencyID, strings.Join(versions, ", "))
		}
	}
}

func writeWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

func (r resolveReport) text(w io.Writer) error {
	if r.Success {
		fmt.Fprintf(w, "%s resolves to %d extension(s):\n", r.Extension, len(r.Plan))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for i, ref := range r.Plan {
			fmt.Fprintf(tw, "  %d\t%s\t%s\n", i+1, ref.ID, ref.Version)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "%s does not resolve (failed while %s)\n", r.Extension, r.State)
	}
	writeWarnings(w, r.Warnings)
	writeErrors(w, r.Errors)
	return nil
}

func (r installReport) text(w io.Writer) error {
	prefix := ""
	if r.DryRun {
		prefix = "dry run: "
	}
	if r.Success {
		fmt.Fprintf(w, "%sinstalled %s\n", prefix, strings.Join(r.Installed, " -> "))
		if len(r.Skipped) > 0 {
			fmt.Fprintf(w, "already installed %s\n", strings.Join(r.Skipped, ", "))
		}
	} else {
		fmt.Fprintf(w, "%sinstall of %s failed\n", prefix, r.Extension)
		if len(r.RolledBack) > 0 {
			fmt.Fprintf(w, "rolled back %s\n", strings.Join(r.RolledBack, " -> "))
		}
	}
	writeWarnings(w, r.Warnings)
	writeErrors(w, r.Errors)
	return nil
}
