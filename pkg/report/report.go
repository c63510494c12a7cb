// Package report renders a completed fleet run as a JSON artefact and a
// human-readable summary, grounded in the teacher's
// pkg/manager/metrics_collector.go convention of deriving counters from a
// snapshot rather than accumulating them live, and in pkg/log's "Complete
// Example" for what a CLI prints on completion.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/cuemby/fleetop/pkg/types"
)

// FileName returns the report file name for op, stamped with the run's
// start time in basic ISO8601 form: {upgrade,rollback}-report-<stamp>.json.
func FileName(op types.OperationKind, startedAt string) string {
	kind := "upgrade"
	if op == types.OperationRollback {
		kind = "rollback"
	}
	return fmt.Sprintf("%s-report-%s.json", kind, startedAt)
}

// WriteJSON marshals report with a stable field order (types.FleetReport's
// declared struct order) and writes it to dir/FileName(...). It returns the
// full path written.
func WriteJSON(dir string, report *types.FleetReport) (string, error) {
	stamp := report.StartedAt.UTC().Format("20060102T150405Z")
	name := FileName(report.Config.Operation, stamp)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal fleet report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write fleet report to %s: %w", path, err)
	}
	return path, nil
}

// WriteHuman renders a human-readable summary of report to w: timing, a
// statistics table, a failures table (if any), and a dry-run candidates
// table (if the run was a dry run).
func WriteHuman(w io.Writer, report *types.FleetReport) error {
	fmt.Fprintf(w, "Fleet %s run\n", report.Config.Operation)
	fmt.Fprintf(w, "  project:   %s\n", report.Config.Project)
	fmt.Fprintf(w, "  locations: %v\n", report.Config.Locations)
	if report.Config.Instance != nil {
		fmt.Fprintf(w, "  instance:  %s\n", *report.Config.Instance)
	}
	fmt.Fprintf(w, "  started:   %s\n", report.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "  finished:  %s\n", report.FinishedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "  duration:  %.1fs\n", report.DurationSeconds)
	if report.Message != "" {
		fmt.Fprintf(w, "\n%s\n", report.Message)
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOTAL\tELIGIBLE\tUP_TO_DATE\tSTARTED\tSUCCEEDED\tFAILED\tSKIPPED\tCOMPENSATED")
	s := report.Statistics
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		s.Total, s.Eligible, s.UpToDate, s.Started, s.Succeeded, s.Failed, s.Skipped, s.Compensated)
	tw.Flush()

	if report.Config.DryRun {
		writeDryRunTable(w, report.Results)
	}

	writeFailuresTable(w, report.Results)
	return nil
}

func writeDryRunTable(w io.Writer, results []types.OperationResult) {
	candidates := make([]types.OperationResult, 0, len(results))
	for _, r := range results {
		if r.Status == types.ResultDryRun {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		fmt.Fprintln(w, "\nNo instances would be affected.")
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Location != candidates[j].Location {
			return candidates[i].Location < candidates[j].Location
		}
		return candidates[i].Instance < candidates[j].Instance
	})
	fmt.Fprintln(w, "\nDry-run candidates:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tINSTANCE\tTARGET VERSION")
	for _, r := range candidates {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Location, r.Instance, r.TargetVersion)
	}
	tw.Flush()
}

func writeFailuresTable(w io.Writer, results []types.OperationResult) {
	failures := make([]types.OperationResult, 0)
	for _, r := range results {
		if r.Status == types.ResultFailed || r.Status == types.ResultSkipped {
			failures = append(failures, r)
		}
	}
	if len(failures) == 0 {
		fmt.Fprintln(w, "\nNo failures or skips.")
		return
	}
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Location != failures[j].Location {
			return failures[i].Location < failures[j].Location
		}
		return failures[i].Instance < failures[j].Instance
	})
	fmt.Fprintln(w, "\nFailures and skips:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tINSTANCE\tSTATUS\tERROR KIND\tMESSAGE")
	for _, r := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Location, r.Instance, r.Status, r.ErrorKind, r.ErrorMessage)
	}
	tw.Flush()
}
