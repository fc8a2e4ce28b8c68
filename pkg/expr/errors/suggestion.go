package errors

import (
	"fmt"
	"strings"
)

// SuggestVariable proposes the closest allowed variable name for unknown.
func SuggestVariable(unknown string, allowed []string) string {
	if len(allowed) == 0 {
		return ""
	}

	minDistance := 1000
	var bestMatch string
	for _, name := range allowed {
		dist := levenshteinDistance(strings.ToLower(unknown), strings.ToLower(name))
		if dist < minDistance {
			minDistance = dist
			bestMatch = name
		}
	}

	if minDistance < 5 {
		return fmt.Sprintf("did you mean '%s'?", bestMatch)
	}
	return fmt.Sprintf("allowed variables: %s", strings.Join(allowed, ", "))
}

func levenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
