package match

import "testing"

func TestSimilarityIdentity(t *testing.T) {
	for _, s := range []string{"", "alice", "żółw123"} {
		if got := Similarity(s, s); got != 1.0 {
			t.Fatalf("Similarity(%q,%q) = %v, expected 1.0", s, s, got)
		}
	}
}

func TestSimilarityRange(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"}, {"a", "zzzzzzzzzz"}, {"abc", ""}, {"żółw", "zolw"},
	}
	for _, p := range pairs {
		got := Similarity(p[0], p[1])
		if got < 0 || got > 1 {
			t.Fatalf("Similarity(%q,%q) = %v out of [0,1]", p[0], p[1], got)
		}
	}
}

func TestSimilaritySubstring(t *testing.T) {
	if got := Similarity("alice", "alic"); got != 0.95 {
		t.Fatalf("expected 0.95 for truncation got %v", got)
	}
	if got := Similarity("alic", "alice"); got != 0.95 {
		t.Fatalf("substring rule should hold in both directions, got %v", got)
	}
}

func TestSimilarityEmptyNeverMatches(t *testing.T) {
	if got := Similarity("", "alice"); got != 0 {
		t.Fatalf("empty vs non-empty should be 0, got %v", got)
	}
}

// OCR loses diacritics routinely; a diacritic-only divergence folds to 0.95, comfortably
// above the 0.7 matching threshold.
func TestSimilarityDiacriticDivergence(t *testing.T) {
	a := Normalize("Żółw_123")
	b := Normalize("Zolw_123")
	if got := Similarity(a, b); got != 0.95 {
		t.Fatalf("Similarity(%q,%q) = %v, expected 0.95", a, b, got)
	}
}

// Exact spelling beats the diacritic-folded double when the roster holds both.
func TestSimilarityExactBeatsFolded(t *testing.T) {
	token := Normalize("Żółw")
	if e, f := Similarity(token, Normalize("Żółw")), Similarity(token, Normalize("Zolw")); e <= f {
		t.Fatalf("exact %v should outrank folded %v", e, f)
	}
}

// A mixed error (one diacritic loss plus one real typo) still scores by the folded edit
// distance, so only the typo counts.
func TestSimilarityMixedError(t *testing.T) {
	got := Similarity(Normalize("Łukasz99"), Normalize("Lukas99"))
	// folded "lukasz99"/"lukas99": distance 1 over 8 runes, length bonus ~0.0875
	want := 1 - 1.0/8 + 0.1*(1-1.0/8)
	if diff := got - want; diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("Similarity = %v, expected %v", got, want)
	}
}

func TestSimilaritySymmetricOutsideSubstring(t *testing.T) {
	a, b := "kasia", "basia"
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatalf("expected symmetry for %q/%q", a, b)
	}
}
