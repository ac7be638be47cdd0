package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
	"github.com/bayleafwalker/bindery-extensions/internal/semver"
)

func newResolveCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <extension-id> <version>",
		Short: "Print the dependency-first install order of an extension",
		Long: `Resolve an extension against the manifest directory and print the
extensions to install, dependencies first, with the version selected for
each. Every problem found is reported; the command exits non-zero when
resolution fails.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := o.loadRegistry()
			if err != nil {
				return err
			}
			ref := manifest.Ref{ID: args[0], Version: args[1]}
			res, err := o.resolver(reg).Resolve(cmd.Context(), ref.ID, ref.Version)
			if err != nil {
				return err
			}
			report := newResolveReport(ref, res)
			if err := render(cmd.OutOrStdout(), o.output, report, report.text); err != nil {
				return err
			}
			if !res.Success {
				return errFailed
			}
			return nil
		},
	}
}

type validateReport struct {
	Valid      bool            `json:"valid"`
	Extensions []resolveReport `json:"extensions"`
}

func newValidateCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Resolve every manifest in the directory",
		Long: `Resolve each published extension version in the manifest directory and
report the ones whose dependencies are missing, conflicting or cyclic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := o.loadRegistry()
			if err != nil {
				return err
			}
			r := o.resolver(reg)
			report := validateReport{Valid: true}
			for _, id := range reg.IDs() {
				versions, err := reg.ListVersions(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, v := range versions {
					res, err := r.Resolve(cmd.Context(), id, v)
					if err != nil {
						return err
					}
					report.Valid = report.Valid && res.Success
					report.Extensions = append(report.Extensions, newResolveReport(manifest.Ref{ID: id, Version: v}, res))
				}
			}
			if err := render(cmd.OutOrStdout(), o.output, report, report.text); err != nil {
				return err
			}
			if !report.Valid {
				return errFailed
			}
			return nil
		},
	}
}

func (r validateReport) text(w io.Writer) error {
	failed := 0
	for _, ext := range r.Extensions {
		if ext.Success {
			fmt.Fprintf(w, "ok      %s\n", ext.Extension)
			continue
		}
		failed++
		fmt.Fprintf(w, "FAILED  %s\n", ext.Extension)
		var b strings.Builder
		writeErrors(&b, ext.Errors)
		for _, line := range strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n") {
			fmt.Fprintf(w, "        %s\n", line)
		}
	}
	fmt.Fprintf(w, "%d of %d extension version(s) resolve\n", len(r.Extensions)-failed, len(r.Extensions))
	return nil
}

func newSuggestCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <extension-id> <constraint>...",
		Short: "List published versions that satisfy every constraint",
		Example: `  extctl suggest core "^1.2.0" "<1.5.0"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			constraints := make([]semver.Constraint, 0, len(args)-1)
			for _, raw := range args[1:] {
				c, err := semver.ParseConstraint(raw)
				if err != nil {
					return err
				}
				constraints = append(constraints, c)
			}
			reg, err := o.loadRegistry()
			if err != nil {
				return err
			}
			candidates := o.resolver(reg).SuggestAlternatives(cmd.Context(), args[0], constraints)
			if candidates == nil {
				candidates = []resolver.Candidate{}
			}
			return render(cmd.OutOrStdout(), o.output, candidates, func(w io.Writer) error {
				if len(candidates) == 0 {
					fmt.Fprintf(w, "no published version of %s satisfies %s\n", args[0], strings.Join(args[1:], " and "))
					return nil
				}
				for _, c := range candidates {
					fmt.Fprintln(w, c.Version)
				}
				return nil
			})
		},
	}
}
