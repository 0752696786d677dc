package scout

import "strings"

// duplicateThreshold is the token-overlap score above which a new
// response is treated as a repeat of the previous one. Duplicates are
// still persisted; only the notification is suppressed.
const duplicateThreshold = 0.9

// responseSimilarity scores two response texts in [0,1] by token
// overlap (Jaccard over lowercased words, punctuation stripped). Two
// empty texts score 1.
func responseSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		tok := strings.Trim(f, ".,;:!?()[]{}\"'`*#-")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

func isDuplicateResponse(prev, cur string) bool {
	if prev == "" {
		return false
	}
	return responseSimilarity(prev, cur) >= duplicateThreshold
}
