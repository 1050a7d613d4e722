// Package report renders a completed scan's TargetReports, either as a
// colorized terminal table (the default) or as a machine-readable JSON
// document (--json), following the teacher's convention of keeping
// rendering as a thin adapter over the core domain types rather than
// letting model types carry presentation concerns themselves.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpeldep/internal/model"
	"github.com/xkilldash9x/scalpeldep/internal/observability"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// reportVersion is the schema version stamped into every JSON report.
const reportVersion = "1"

// jsonReport mirrors the documented JSON report schema exactly: version,
// scanned_at, and one entry per target.
type jsonReport struct {
	Version   string       `json:"version"`
	ScannedAt time.Time    `json:"scanned_at"`
	Targets   []jsonTarget `json:"targets"`
}

type jsonTarget struct {
	URL        string        `json:"url"`
	Status     string        `json:"status"`
	DurationMs int64         `json:"duration_ms"`
	Findings   []jsonFinding `json:"findings"`
	Errors     []string      `json:"errors"`
}

type jsonFinding struct {
	Name       string         `json:"name"`
	Class      string         `json:"class"`
	Severity   string         `json:"severity"`
	Confidence string         `json:"confidence"`
	Evidence   []jsonEvidence `json:"evidence"`
}

type jsonEvidence struct {
	Extractor string `json:"extractor"`
	ScriptURL string `json:"script_url"`
	Context   string `json:"context"`
}

// WriteJSON serializes every target's report into the documented JSON
// schema. scannedAt is passed in by the caller rather than captured
// internally, since wall-clock time can't be read from inside a workflow
// script and callers outside one still benefit from an explicit,
// testable timestamp.
func WriteJSON(w io.Writer, reports []*model.TargetReport, scannedAt time.Time) error {
	doc := jsonReport{
		Version:   reportVersion,
		ScannedAt: scannedAt,
		Targets:   make([]jsonTarget, 0, len(reports)),
	}
	for _, r := range reports {
		doc.Targets = append(doc.Targets, toJSONTarget(r))
	}

	enc := jsonAPI.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

func toJSONTarget(r *model.TargetReport) jsonTarget {
	t := jsonTarget{
		URL:        r.URL,
		Status:     string(r.Status),
		DurationMs: r.Duration.Milliseconds(),
		Findings:   make([]jsonFinding, 0, len(r.Findings)),
		Errors:     r.Errors,
	}
	for _, f := range r.Findings {
		t.Findings = append(t.Findings, toJSONFinding(f))
	}
	return t
}

func toJSONFinding(f model.Finding) jsonFinding {
	jf := jsonFinding{
		Name:       f.Name,
		Class:      string(f.Class),
		Severity:   f.Severity.String(),
		Confidence: f.Confidence.String(),
		Evidence:   make([]jsonEvidence, 0, len(f.Evidence)),
	}
	for _, e := range f.Evidence {
		jf.Evidence = append(jf.Evidence, jsonEvidence{
			Extractor: string(e.Method),
			ScriptURL: e.ScriptURL,
			Context:   e.Context,
		})
	}
	return jf
}

// severityColor names the ANSI color (from the same table the console log
// encoder uses) for each severity, so a scan report colorizes consistently
// with the rest of the program's terminal output.
func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return observability.ANSIColor("red")
	case model.SeverityHigh:
		return observability.ANSIColor("red")
	case model.SeverityMedium:
		return observability.ANSIColor("yellow")
	default:
		return observability.ANSIColor("cyan")
	}
}

// WriteText renders every target as a header line plus a tabwriter-aligned
// findings table. quiet suppresses targets with zero findings entirely,
// matching --quiet's documented effect.
func WriteText(w io.Writer, reports []*model.TargetReport, quiet bool) error {
	for _, r := range reports {
		if quiet && len(r.Findings) == 0 {
			continue
		}
		if err := writeTarget(w, r); err != nil {
			return err
		}
	}
	return nil
}

func writeTarget(w io.Writer, r *model.TargetReport) error {
	if _, err := fmt.Fprintf(w, "\n%s  [%s]  %d scripts  %s\n", r.URL, r.Status, r.ScriptsSeen, r.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(w, "  error: %s\n", e); err != nil {
			return err
		}
	}
	if len(r.Findings) == 0 {
		_, err := fmt.Fprintln(w, "  no findings")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tCLASS\tSEVERITY\tCONFIDENCE\tEVIDENCE")
	for _, f := range r.Findings {
		color := severityColor(f.Severity)
		reset := ""
		if color != "" {
			reset = observability.ANSIReset
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s%s\t%s\t%d\n",
			f.Name, f.Class, color, f.Severity, reset, f.Confidence, len(f.Evidence))
	}
	return tw.Flush()
}
