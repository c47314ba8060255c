package executors

import (
	"fmt"
	"io"
	"strings"
)

const (
	summaryTemplate      = "Resolved %d %s: %d acquired, %d reused, %d failed"
	executorSingularNoun = "executor"
	executorPluralNoun   = "executors"
)

// RenderSummaryLine returns the summary line printed after a batch. An empty batch renders nothing.
func RenderSummaryLine(outcomes []Outcome) string {
	if len(outcomes) == 0 {
		return ""
	}

	acquired, reused, failed := 0, 0, 0
	for _, outcome := range outcomes {
		switch {
		case outcome.Err != nil:
			failed++
		case outcome.Handle.Acquired:
			acquired++
		default:
			reused++
		}
	}

	noun := executorPluralNoun
	if len(outcomes) == 1 {
		noun = executorSingularNoun
	}
	return fmt.Sprintf(summaryTemplate, len(outcomes), noun, acquired, reused, failed)
}

// PrintSummary writes the summary line for outcomes to writer when there is one.
func PrintSummary(writer io.Writer, outcomes []Outcome) {
	if writer == nil {
		return
	}
	summary := RenderSummaryLine(outcomes)
	if len(strings.TrimSpace(summary)) == 0 {
		return
	}
	fmt.Fprintln(writer, summary)
}
