package tracker

import (
	"fmt"
	"strings"

	"github.com/caseflow/caseflow/internal/store"
)

// reportBody renders the pre-filled description for a new bug report.
// When markdown is set, field labels are bolded for trackers that render
// Markdown (GitLab).
func reportBody(execution *store.ExecutionDetail, executionURL string, markdown bool) string {
	label := func(name string) string {
		if markdown {
			return "**" + name + "**"
		}
		return name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filed from execution %s\n\n", executionURL)
	fmt.Fprintf(&b, "%s:\n%s\n\n", label("Product"), execution.ProductName)
	fmt.Fprintf(&b, "%s:\n%s\n\n", label("Component(s)"), strings.Join(execution.Components, ", "))
	fmt.Fprintf(&b, "Version-Release number of selected component (if applicable):\n%s\n\n", execution.BuildName)
	fmt.Fprintf(&b, "%s: \n%s\n\n", label("Steps to Reproduce"), execution.CaseText)
	fmt.Fprintf(&b, "%s: \n<describe what happened>\n\n", label("Actual results"))
	return b.String()
}

// reportSummary renders the one-line summary for a new bug report
func reportSummary(execution *store.ExecutionDetail) string {
	return "Failed test: " + execution.CaseSummary
}

// linkComment renders the comment posted on an issue to point back at the
// test execution which discovered it
func linkComment(execution *store.ExecutionDetail, executionURL string) string {
	var b strings.Builder
	b.WriteString("Confirmed via test execution\n")
	fmt.Fprintf(&b, "TR-%d: %s\n", execution.RunID, execution.RunSummary)
	fmt.Fprintf(&b, "%s\n", executionURL)
	fmt.Fprintf(&b, "TC-%d: %s", execution.CaseID, execution.CaseSummary)
	return b.String()
}
