package httpx

import "testing"

func TestSanitizeSearchQueryStripsFTS5SpecialCharacters(t *testing.T) {
	got := sanitizeSearchQuery("foo' OR \"bar\" * (baz) `qux`")
	want := "foo* OR* bar* baz* qux*"
	if got != want {
		t.Errorf("sanitizeSearchQuery() = %q, want %q", got, want)
	}
}

func TestSanitizeSearchQueryEmptyAfterStripping(t *testing.T) {
	if got := sanitizeSearchQuery(`'"*()` + "`"); got != "" {
		t.Errorf("expected empty result for all-special-character input, got %q", got)
	}
}

func TestSearchOverfetchCountScalesWithPage(t *testing.T) {
	if got := searchOverfetchCount(50, 0); got != searchOverfetchFloor {
		t.Errorf("expected small pages to use the floor, got %d", got)
	}
	if got, want := searchOverfetchCount(50, 1000), 3*(50+1000); got != want {
		t.Errorf("searchOverfetchCount(50, 1000) = %d, want %d", got, want)
	}
}
