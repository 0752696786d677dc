package scout

import "testing"

func TestResponseSimilarity(t *testing.T) {
	a := "## Found\nA 2-room flat in Kreuzberg for 1350 EUR."

	if got := responseSimilarity(a, a); got != 1 {
		t.Errorf("identical texts: got %v, want 1", got)
	}
	if got := responseSimilarity(a, "completely different words here"); got > 0.1 {
		t.Errorf("disjoint texts: got %v", got)
	}
	if got := responseSimilarity("", ""); got != 1 {
		t.Errorf("two empty texts: got %v, want 1", got)
	}
	if got := responseSimilarity(a, ""); got != 0 {
		t.Errorf("one empty text: got %v, want 0", got)
	}
}

func TestSimilarityIgnoresCaseAndPunctuation(t *testing.T) {
	a := "Found a flat: Kreuzberg, 1350 EUR!"
	b := "found a flat kreuzberg 1350 eur"
	if got := responseSimilarity(a, b); got != 1 {
		t.Errorf("got %v, want 1", got)
	}
}

func TestIsDuplicateResponse(t *testing.T) {
	prev := "Your scout found a 2-room flat in Kreuzberg for 1350 EUR, available from May. Contact the landlord via the portal listing."

	if !isDuplicateResponse(prev, prev) {
		t.Error("identical response not flagged as duplicate")
	}
	if isDuplicateResponse(prev, "No new listings matched your criteria this week.") {
		t.Error("unrelated response flagged as duplicate")
	}
	// First-ever result can never be a duplicate.
	if isDuplicateResponse("", prev) {
		t.Error("response with no predecessor flagged as duplicate")
	}
}
