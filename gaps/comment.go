package gaps

import (
	"fmt"
	"io"
	"strings"

	"github.com/oxhq/testgap/core"
)

// FormatPRComment renders the review comment posted on a pull request
func FormatPRComment(report core.GapReport) string {
	var b strings.Builder

	b.WriteString("AI Test Analysis\n\n")
	fmt.Fprintf(&b, "Gaps detected: %d untested branches/paths\n", len(report.Gaps))
	gapLines := make([]string, len(report.Gaps))
	for i, gap := range report.Gaps {
		gapLines[i] = "- " + gap
	}
	b.WriteString(strings.Join(gapLines, "\n"))

	fmt.Fprintf(&b, "\n\nProposed tests: %d unit tests\n", len(report.ProposedTests))
	testLines := make([]string, len(report.ProposedTests))
	for i, test := range report.ProposedTests {
		testLines[i] = fmt.Sprintf("- %s: %s", test.Name, test.Description)
	}
	b.WriteString(strings.Join(testLines, "\n"))

	b.WriteString("\n\nOptions: Accept tests | Edit | Reject")
	return b.String()
}

// PostPRComment prints the comment to w. Posting to a code host is simulated.
func PostPRComment(w io.Writer, report core.GapReport) string {
	comment := FormatPRComment(report)
	banner := strings.Repeat("=", 50)

	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "PR COMMENT POSTED:")
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, comment)

	return comment
}
