package conversation

import (
	"fmt"
	"strings"
)

// Tool results fed back to the model are cut to these limits. The full
// output still goes out on the event stream.
const (
	DefaultToolOutputChars = 20000
	DefaultToolOutputLines = 400
)

// TruncateOutput keeps the head and tail of output when it exceeds maxChars.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - 2*half
	return output[:half] +
		fmt.Sprintf("\n\n[output truncated: %d characters removed from the middle]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines keeps the first and last lines of output when it has more
// than maxLines lines.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncateToolOutput applies the character limit, then the line limit.
func truncateToolOutput(output string, maxChars, maxLines int) string {
	return TruncateLines(TruncateOutput(output, maxChars), maxLines)
}
