package orchestrator

import "strings"

// Consensus picks the majority answer. Answers are compared after trimming,
// collapsing internal whitespace and case folding. Ties go to the answer
// whose normalized form was seen first. The winner is returned exactly as it
// was first seen, with its vote count. No answers yields ("", 0).
func Consensus(answers []string) (string, int) {
	counts := make(map[string]int, len(answers))
	first := make(map[string]string, len(answers))
	var order []string

	for _, a := range answers {
		key := normalizeAnswer(a)
		if _, seen := counts[key]; !seen {
			first[key] = a
			order = append(order, key)
		}
		counts[key]++
	}

	best, votes := "", 0
	for _, key := range order {
		if counts[key] > votes {
			best, votes = key, counts[key]
		}
	}
	if votes == 0 {
		return "", 0
	}
	return first[best], votes
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
