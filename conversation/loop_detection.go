package conversation

import (
	"crypto/sha256"
	"fmt"
)

func toolCallSignature(name, arguments string) string {
	h := sha256.Sum256([]byte(arguments))
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentToolCallSignatures returns up to count signatures of the latest tool
// calls in chronological order.
func recentToolCallSignatures(history []Turn, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		turn := history[i]
		if turn.Kind != TurnAssistant || turn.Assistant == nil {
			continue
		}
		for j := len(turn.Assistant.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			tc := turn.Assistant.ToolCalls[j]
			sigs = append(sigs, toolCallSignature(tc.Name, tc.Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last windowSize tool calls repeat a pattern
// of length 1, 2 or 3.
func DetectLoop(history []Turn, windowSize int) bool {
	if windowSize <= 1 {
		return false
	}
	sigs := recentToolCallSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || windowSize == patternLen {
			continue
		}
		if repeats(sigs, patternLen) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, patternLen int) bool {
	for i := patternLen; i < len(sigs); i++ {
		if sigs[i] != sigs[i%patternLen] {
			return false
		}
	}
	return true
}
